package engine

import (
	"context"

	"github.com/google/uuid"

	"oxinot/internal/domain"
	"oxinot/internal/index"
	"oxinot/internal/ordering"
)

// insertBelowPosition is the single placement rule behind every
// "create after current" entry point — Enter key, tool call, batch import.
// Given reference block R: if R has at least one child, the new block
// becomes R's FIRST child; otherwise it becomes R's next sibling.
// Caller holds mu.
func (e *Engine) insertBelowPosition(ref *domain.Block) (parentID, afterID *string) {
	if len(e.idx.Children(ref.ID)) > 0 {
		parent := ref.ID
		return &parent, nil
	}
	after := ref.ID
	return ref.ParentID, &after
}

// CreateBelow creates a new block positioned below the reference block per
// the insert-below rule, focuses it, and returns the canonical record.
func (e *Engine) CreateBelow(ctx context.Context, refID, content string) (*domain.Block, error) {
	e.mu.Lock()
	ref := e.idx.Get(refID)
	if ref == nil {
		e.mu.Unlock()
		return nil, domain.Validationf("create below", "unknown block %s", refID)
	}
	parentID, afterID := e.insertBelowPosition(ref)
	e.mu.Unlock()

	rec, err := e.gateway.CreateBlock(ctx, e.pageID, parentID, afterID, content)
	if err != nil {
		e.reloadQuietly(ctx)
		return nil, domain.Persistence("create below", err)
	}

	e.mu.Lock()
	copied := *rec
	e.idx.Put(&copied)
	e.idx.RebuildFor(index.ParentKeyOf(&copied))
	e.setFocus(rec.ID, 0)
	e.mu.Unlock()
	e.broadcast(ctx, []domain.Block{*rec}, nil)
	return rec, nil
}

// EnsureFirstBlock guarantees an empty page has one block to type into.
// This is the one optimistic-create path: a temporary local id is applied
// synchronously — before the first suspension point, so no caller observes
// an empty page — and atomically swapped for the server id on confirmation.
func (e *Engine) EnsureFirstBlock(ctx context.Context) (*domain.Block, error) {
	e.mu.Lock()
	if e.idx.Len() > 0 {
		roots := e.idx.Roots()
		first := *e.idx.Get(roots[0])
		e.mu.Unlock()
		return &first, nil
	}
	tempID := "tmp-" + uuid.New().String()
	temp := &domain.Block{
		ID:          tempID,
		PageID:      e.pageID,
		Type:        domain.BlockTypeBullet,
		OrderWeight: ordering.Initial(),
	}
	e.idx.Put(temp)
	e.idx.RebuildFor(index.RootKey)
	e.setFocus(tempID, 0)
	e.mu.Unlock()

	rec, err := e.gateway.CreateBlock(ctx, e.pageID, nil, nil, "")
	if err != nil {
		e.mu.Lock()
		e.idx.Remove(tempID)
		e.idx.RebuildFor(index.RootKey)
		if e.focus.blockID == tempID {
			e.focus = focusState{}
		}
		e.mu.Unlock()
		return nil, domain.Persistence("ensure first block", err)
	}

	// Swap the temporary id for the canonical record in one critical
	// section; focus and drafts follow the block across the swap.
	e.mu.Lock()
	e.idx.Remove(tempID)
	copied := *rec
	e.idx.Put(&copied)
	e.idx.RebuildFor(index.RootKey)
	if draft, ok := e.drafts[tempID]; ok {
		delete(e.drafts, tempID)
		e.drafts[rec.ID] = draft
	}
	if e.focus.blockID == tempID {
		e.focus.blockID = rec.ID
	}
	e.mu.Unlock()
	e.broadcast(ctx, []domain.Block{*rec}, nil)
	return rec, nil
}

// SplitAtCursor splits a block's text at a rune offset: the text before the
// cursor stays in place, the text after it moves to a new block placed via
// the insert-below rule, and focus lands on the new block at offset 0. When
// the editing surface supplies a live draft — possibly ahead of the
// last-persisted content — the draft is the split source.
//
// The `before` update is persisted before the new block is created, so a
// partial failure can never duplicate or lose text; any failure aborts the
// whole split and reloads the page.
func (e *Engine) SplitAtCursor(ctx context.Context, id string, offset int, liveDraft *string) (*domain.Block, error) {
	e.mu.Lock()
	b := e.idx.Get(id)
	if b == nil {
		e.mu.Unlock()
		return nil, domain.Validationf("split", "unknown block %s", id)
	}
	source := b.Content
	if liveDraft != nil {
		source = *liveDraft
	} else if draft, ok := e.drafts[id]; ok {
		source = draft
	}
	before, after := splitRunes(source, offset)
	h := e.stage(b, func(b *domain.Block) { b.Content = before })
	delete(e.drafts, id)
	parentID, afterID := e.insertBelowPosition(b)
	e.mu.Unlock()

	headRec, err := e.gateway.UpdateBlock(ctx, id, domain.BlockPatch{Content: &before})
	if err != nil {
		e.mu.Lock()
		e.rollback(h)
		e.mu.Unlock()
		e.reloadQuietly(ctx)
		return nil, domain.Persistence("split: persist head", err)
	}

	rec, err := e.gateway.CreateBlock(ctx, e.pageID, parentID, afterID, after)
	if err != nil {
		// The head update already landed; the split is half-applied in the
		// store, so local guesses are worthless. Reload.
		e.reloadQuietly(ctx)
		return nil, domain.Persistence("split: create tail", err)
	}

	e.mu.Lock()
	e.confirm(h, headRec)
	copied := *rec
	e.idx.Put(&copied)
	e.idx.RebuildFor(index.ParentKeyOf(&copied))
	e.setFocus(rec.ID, 0)
	e.mu.Unlock()
	e.broadcast(ctx, []domain.Block{*headRec, *rec}, nil)
	return rec, nil
}

// splitRunes splits s at a rune offset, clamping out-of-range offsets.
func splitRunes(s string, offset int) (before, after string) {
	runes := []rune(s)
	if offset < 0 {
		offset = 0
	}
	if offset > len(runes) {
		offset = len(runes)
	}
	return string(runes[:offset]), string(runes[offset:])
}
