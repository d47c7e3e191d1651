package engine

import (
	"context"
	"unicode/utf8"

	"oxinot/internal/domain"
	"oxinot/internal/index"
	"oxinot/internal/ordering"
)

// UpdateContent writes a block's content. This is the commit path for
// drafts; calls targeting a block that is one side of an in-flight merge
// are suppressed so a stale flush cannot clobber the merge result.
func (e *Engine) UpdateContent(ctx context.Context, id, content string) error {
	e.mu.Lock()
	if e.merge.Held(id) {
		e.mu.Unlock()
		return nil
	}
	b := e.idx.Get(id)
	if b == nil {
		e.mu.Unlock()
		return domain.Validationf("update content", "unknown block %s", id)
	}
	h := e.stage(b, func(b *domain.Block) { b.Content = content })
	delete(e.drafts, id)
	e.mu.Unlock()

	rec, err := e.gateway.UpdateBlock(ctx, id, domain.BlockPatch{Content: &content})
	if err != nil {
		e.mu.Lock()
		e.rollback(h)
		e.mu.Unlock()
		e.reloadQuietly(ctx)
		return domain.Persistence("update content", err)
	}
	e.mu.Lock()
	e.confirm(h, rec)
	e.mu.Unlock()
	e.broadcast(ctx, []domain.Block{*rec}, nil)
	return nil
}

// UpdateMetadata applies a type/language/metadata patch to a block.
func (e *Engine) UpdateMetadata(ctx context.Context, id string, patch domain.BlockPatch) error {
	e.mu.Lock()
	b := e.idx.Get(id)
	if b == nil {
		e.mu.Unlock()
		return domain.Validationf("update metadata", "unknown block %s", id)
	}
	h := e.stage(b, func(b *domain.Block) {
		if patch.Content != nil {
			b.Content = *patch.Content
		}
		if patch.Type != nil {
			b.Type = *patch.Type
		}
		if patch.Language != nil {
			b.Language = *patch.Language
		}
		if patch.Metadata != nil {
			b.Metadata = patch.Metadata
		}
	})
	e.mu.Unlock()

	rec, err := e.gateway.UpdateBlock(ctx, id, patch)
	if err != nil {
		e.mu.Lock()
		e.rollback(h)
		e.mu.Unlock()
		e.reloadQuietly(ctx)
		return domain.Persistence("update metadata", err)
	}
	e.mu.Lock()
	e.confirm(h, rec)
	e.mu.Unlock()
	e.broadcast(ctx, []domain.Block{*rec}, nil)
	return nil
}

// Indent nests a block under its immediately preceding sibling, preserving
// its subtree. A first sibling has nowhere to go: the call is a no-op with
// no gateway traffic and no error.
func (e *Engine) Indent(ctx context.Context, id string) error {
	e.mu.Lock()
	b := e.idx.Get(id)
	if b == nil {
		e.mu.Unlock()
		return domain.Validationf("indent", "unknown block %s", id)
	}
	prev := e.idx.PreviousSibling(id)
	if prev == "" {
		e.mu.Unlock()
		return nil
	}
	weight := ordering.Initial()
	if kids := e.idx.Children(prev); len(kids) > 0 {
		weight = ordering.After(e.idx.Get(kids[len(kids)-1]).OrderWeight)
	}
	h := e.stage(b, func(b *domain.Block) {
		parent := prev
		b.ParentID = &parent
		b.OrderWeight = weight
	})
	e.mu.Unlock()

	rec, err := e.gateway.IndentBlock(ctx, id)
	return e.settleSingle(ctx, "indent", h, rec, err)
}

// Outdent lifts a block to its grandparent, positioned immediately after
// its former parent. A root-level block is a no-op.
func (e *Engine) Outdent(ctx context.Context, id string) error {
	e.mu.Lock()
	b := e.idx.Get(id)
	if b == nil {
		e.mu.Unlock()
		return domain.Validationf("outdent", "unknown block %s", id)
	}
	if b.ParentID == nil {
		e.mu.Unlock()
		return nil
	}
	parent := e.idx.Get(*b.ParentID)
	if parent == nil {
		e.mu.Unlock()
		return &domain.InvariantViolation{Detail: "parent of " + id + " not indexed"}
	}
	weight := ordering.After(parent.OrderWeight)
	if next := e.idx.NextSibling(parent.ID); next != "" {
		if w, ok := ordering.Between(parent.OrderWeight, e.idx.Get(next).OrderWeight); ok {
			weight = w
		} else {
			// Exhausted gap; the canonical record fixes the provisional tie.
			weight = parent.OrderWeight
		}
	}
	grandparent := parent.ParentID
	h := e.stage(b, func(b *domain.Block) {
		b.ParentID = grandparent
		b.OrderWeight = weight
	})
	e.mu.Unlock()

	rec, err := e.gateway.OutdentBlock(ctx, id)
	return e.settleSingle(ctx, "outdent", h, rec, err)
}

// Move arbitrarily reparents/reorders a block (drag and drop). A nil
// afterID places the block at the head of the target sibling list.
func (e *Engine) Move(ctx context.Context, id string, newParentID, afterID *string) error {
	e.mu.Lock()
	b := e.idx.Get(id)
	if b == nil {
		e.mu.Unlock()
		return domain.Validationf("move", "unknown block %s", id)
	}
	if newParentID != nil {
		if *newParentID == id {
			e.mu.Unlock()
			return domain.Validationf("move", "block %s cannot parent itself", id)
		}
		for _, did := range e.idx.Descendants(id) {
			if did == *newParentID {
				e.mu.Unlock()
				return domain.Validationf("move", "target parent %s is inside the subtree of %s", *newParentID, id)
			}
		}
		if e.idx.Get(*newParentID) == nil {
			e.mu.Unlock()
			return domain.Validationf("move", "unknown parent %s", *newParentID)
		}
	}
	weight := e.provisionalWeight(newParentID, afterID, id)
	h := e.stage(b, func(b *domain.Block) {
		b.ParentID = newParentID
		b.OrderWeight = weight
	})
	e.mu.Unlock()

	rec, err := e.gateway.MoveBlock(ctx, id, newParentID, afterID)
	return e.settleSingle(ctx, "move", h, rec, err)
}

// ToggleCollapse flips a block's collapsed flag. Children stay in storage;
// only the visible projection changes.
func (e *Engine) ToggleCollapse(ctx context.Context, id string) error {
	e.mu.Lock()
	b := e.idx.Get(id)
	if b == nil {
		e.mu.Unlock()
		return domain.Validationf("toggle collapse", "unknown block %s", id)
	}
	h := e.stage(b, func(b *domain.Block) { b.Collapsed = !b.Collapsed })
	e.mu.Unlock()

	rec, err := e.gateway.ToggleCollapse(ctx, id)
	return e.settleSingle(ctx, "toggle collapse", h, rec, err)
}

// Delete removes a block and its whole subtree. The last block of a page is
// never deleted: the call is refused with a validation error and no gateway
// traffic.
func (e *Engine) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	b := e.idx.Get(id)
	if b == nil {
		e.mu.Unlock()
		return domain.Validationf("delete", "unknown block %s", id)
	}
	if e.idx.Len() == 1 {
		e.mu.Unlock()
		return domain.Validationf("delete", "cannot delete the last block of a page")
	}

	// Snapshot the subtree for rollback, then remove it optimistically.
	removed := []domain.Block{*b}
	for _, did := range e.idx.Descendants(id) {
		removed = append(removed, *e.idx.Get(did))
	}
	focusNext := e.idx.PreviousVisible(id)
	focusedInSubtree := false
	for _, r := range removed {
		if e.focus.blockID != "" && r.ID == e.focus.blockID {
			focusedInSubtree = true
		}
	}
	parentKey := index.ParentKeyOf(b)
	for _, r := range removed {
		e.idx.Remove(r.ID)
		delete(e.drafts, r.ID)
	}
	e.idx.RebuildFor(parentKey)
	if focusedInSubtree {
		if focusNext != nil {
			e.setFocus(focusNext.ID, utf8.RuneCountInString(focusNext.Content))
		} else {
			e.focus = focusState{}
		}
	}
	e.mu.Unlock()

	ids, err := e.gateway.DeleteBlock(ctx, id)
	if err != nil {
		e.mu.Lock()
		for i := range removed {
			restored := removed[i]
			e.idx.Put(&restored)
		}
		keys := map[string]struct{}{parentKey: {}}
		for i := range removed {
			keys[index.ParentKeyOf(&removed[i])] = struct{}{}
		}
		for key := range keys {
			e.idx.RebuildFor(key)
		}
		e.mu.Unlock()
		e.reloadQuietly(ctx)
		return domain.Persistence("delete", err)
	}

	// The response is canonical: drop anything it names that survived the
	// optimistic removal.
	e.mu.Lock()
	for _, did := range ids {
		if e.idx.Get(did) != nil {
			key := index.ParentKeyOf(e.idx.Get(did))
			e.idx.Remove(did)
			e.idx.RebuildFor(key)
		}
		delete(e.drafts, did)
	}
	e.mu.Unlock()
	e.broadcast(ctx, nil, ids)
	return nil
}

// settleSingle finishes a staged single-record operation: confirm with the
// canonical record on success, roll back and resync on failure.
func (e *Engine) settleSingle(ctx context.Context, op string, h *staged, rec *domain.Block, err error) error {
	if err != nil {
		e.mu.Lock()
		e.rollback(h)
		e.mu.Unlock()
		e.reloadQuietly(ctx)
		return domain.Persistence(op, err)
	}
	e.mu.Lock()
	e.confirm(h, rec)
	e.mu.Unlock()
	e.broadcast(ctx, []domain.Block{*rec}, nil)
	return nil
}

// provisionalWeight mirrors the gateway's placement arithmetic for the
// optimistic phase. The canonical record overrides it on confirmation.
// Caller holds mu.
func (e *Engine) provisionalWeight(parentID, afterID *string, exclude string) float64 {
	key := index.RootKey
	if parentID != nil {
		key = *parentID
	}
	var sibs []*domain.Block
	for _, sid := range e.idx.Children(key) {
		if sid != exclude {
			sibs = append(sibs, e.idx.Get(sid))
		}
	}
	if len(sibs) == 0 {
		return ordering.Initial()
	}
	if afterID == nil {
		return ordering.Before(sibs[0].OrderWeight)
	}
	for i, s := range sibs {
		if s.ID != *afterID {
			continue
		}
		if i+1 < len(sibs) {
			if w, ok := ordering.Between(s.OrderWeight, sibs[i+1].OrderWeight); ok {
				return w
			}
			return s.OrderWeight
		}
		return ordering.After(s.OrderWeight)
	}
	return ordering.After(sibs[len(sibs)-1].OrderWeight)
}
