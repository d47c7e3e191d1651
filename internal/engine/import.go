package engine

import (
	"context"

	"oxinot/internal/domain"
	"oxinot/internal/index"
	"oxinot/internal/outline"
)

// ImportOutline batch-creates an outline tree below a reference block. The
// first imported root is placed via the insert-below rule; its siblings
// follow it, and children nest in order. The import is transactional from
// the engine's viewpoint: any failure aborts the whole operation and
// reloads the page rather than guessing which records landed.
func (e *Engine) ImportOutline(ctx context.Context, refID string, nodes []*outline.Node) ([]domain.Block, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	e.mu.Lock()
	ref := e.idx.Get(refID)
	if ref == nil {
		e.mu.Unlock()
		return nil, domain.Validationf("import outline", "unknown block %s", refID)
	}
	parentID, afterID := e.insertBelowPosition(ref)
	e.mu.Unlock()

	var created []domain.Block
	var createTree func(parentID, afterID *string, n *outline.Node) (*domain.Block, error)
	createTree = func(parentID, afterID *string, n *outline.Node) (*domain.Block, error) {
		rec, err := e.gateway.CreateBlock(ctx, e.pageID, parentID, afterID, n.Content)
		if err != nil {
			return nil, err
		}
		created = append(created, *rec)
		var prev *string
		for _, child := range n.Children {
			kid, err := createTree(&rec.ID, prev, child)
			if err != nil {
				return nil, err
			}
			prev = &kid.ID
		}
		return rec, nil
	}

	for _, n := range nodes {
		rec, err := createTree(parentID, afterID, n)
		if err != nil {
			e.reloadQuietly(ctx)
			return nil, domain.Persistence("import outline", err)
		}
		afterID = &rec.ID
	}

	e.mu.Lock()
	keys := map[string]struct{}{}
	for i := range created {
		copied := created[i]
		e.idx.Put(&copied)
		keys[index.ParentKeyOf(&copied)] = struct{}{}
	}
	for key := range keys {
		e.idx.RebuildFor(key)
	}
	e.mu.Unlock()
	e.broadcast(ctx, created, nil)
	return created, nil
}
