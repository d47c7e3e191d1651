package engine

// ─────────────────────────────────────────────────────────────
// Focus/cursor coordinator
// ─────────────────────────────────────────────────────────────

// focusState tracks which block owns the caret and the cursor offset the
// editing surface should apply after a structural operation. The offset is
// consumed exactly once, then cleared.
type focusState struct {
	blockID string
	cursor  *int
}

// FocusedBlockID returns the focused block id, or "" when nothing is
// focused.
func (e *Engine) FocusedBlockID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.focus.blockID
}

// Focus moves focus to a block without a pending cursor offset. Focusing ""
// clears focus entirely.
func (e *Engine) Focus(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.focus = focusState{blockID: id}
}

// setFocus points focus at a block with a pending cursor offset. Caller
// holds mu.
func (e *Engine) setFocus(id string, cursor int) {
	e.focus = focusState{blockID: id, cursor: &cursor}
}

// TargetCursorOffset reports the pending cursor offset without consuming
// it. ok is false when no programmatic navigation is pending.
func (e *Engine) TargetCursorOffset() (offset int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.focus.cursor == nil {
		return 0, false
	}
	return *e.focus.cursor, true
}

// TakeCursorOffset consumes the pending cursor offset. The editing surface
// calls this once after a structural operation to place the caret; the
// offset is cleared so external change handling returns to draft ownership.
func (e *Engine) TakeCursorOffset() (offset int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.focus.cursor == nil {
		return 0, false
	}
	offset = *e.focus.cursor
	e.focus.cursor = nil
	return offset, true
}
