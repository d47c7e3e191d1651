package engine

import (
	"context"

	"oxinot/internal/domain"
	"oxinot/internal/index"
)

// ─────────────────────────────────────────────────────────────
// Draft/commit discipline
// ─────────────────────────────────────────────────────────────
//
// While a block is focused, its text belongs to the editing surface as a
// draft; the engine's stored value is written only at commit points: blur,
// immediately before a structural operation that reads content, or an idle
// flush. External change notifications never overwrite a focused block's
// value unless a programmatic navigation is pending, in which case the
// engine is authoritative and the draft is dropped.

// SetDraft records in-progress text for a block. No persistence happens
// until a commit point.
func (e *Engine) SetDraft(id, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.merge.Held(id) {
		return
	}
	e.drafts[id] = content
}

// Draft returns the uncommitted text for a block, if any.
func (e *Engine) Draft(id string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	draft, ok := e.drafts[id]
	return draft, ok
}

// EffectiveContent returns the draft when one exists, else the stored
// content. This is what structural operations reading text should see.
func (e *Engine) EffectiveContent(id string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if draft, ok := e.drafts[id]; ok {
		return draft, true
	}
	if b := e.idx.Get(id); b != nil {
		return b.Content, true
	}
	return "", false
}

// CommitDraft flushes a block's draft to the store. Unchanged or absent
// drafts are dropped without gateway traffic; commits targeting a block
// holding the merge lock are suppressed.
func (e *Engine) CommitDraft(ctx context.Context, id string) error {
	e.mu.Lock()
	draft, ok := e.drafts[id]
	if !ok || e.merge.Held(id) {
		e.mu.Unlock()
		return nil
	}
	b := e.idx.Get(id)
	if b == nil {
		delete(e.drafts, id)
		e.mu.Unlock()
		return nil
	}
	if b.Content == draft {
		delete(e.drafts, id)
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()
	return e.UpdateContent(ctx, id, draft)
}

// Blur commits the focused block's draft and clears focus.
func (e *Engine) Blur(ctx context.Context) error {
	e.mu.Lock()
	id := e.focus.blockID
	e.focus = focusState{}
	e.mu.Unlock()
	if id == "" {
		return nil
	}
	return e.CommitDraft(ctx, id)
}

// ApplyExternal folds change notifications from another actor (a second
// process on the same store, a remote sync) into the index. The focused
// block keeps its local value — the draft owns it — unless a programmatic
// navigation is pending, in which case the incoming record wins and the
// draft resyncs to it.
func (e *Engine) ApplyExternal(changed []domain.Block, deletedIDs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys := map[string]struct{}{}
	for i := range changed {
		rec := changed[i]
		if rec.ID == e.focus.blockID && e.focus.cursor == nil {
			continue
		}
		if rec.ID == e.focus.blockID {
			// Pending navigation: engine value is authoritative.
			delete(e.drafts, rec.ID)
		}
		if prior := e.idx.Get(rec.ID); prior != nil {
			keys[index.ParentKeyOf(prior)] = struct{}{}
		}
		copied := rec
		e.idx.Put(&copied)
		keys[index.ParentKeyOf(&copied)] = struct{}{}
	}
	for _, id := range deletedIDs {
		if prior := e.idx.Get(id); prior != nil {
			keys[index.ParentKeyOf(prior)] = struct{}{}
			e.idx.Remove(id)
		}
		delete(e.drafts, id)
		if e.focus.blockID == id {
			e.focus = focusState{}
		}
	}
	for key := range keys {
		e.idx.RebuildFor(key)
	}
}
