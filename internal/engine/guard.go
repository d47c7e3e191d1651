package engine

import "sync"

// ─────────────────────────────────────────────────────────────
// mergeGuard — transient mutual exclusion over a merging pair
// ─────────────────────────────────────────────────────────────

// mergeGuard holds the (source, target) block ids of an in-flight merge.
// While held, content flushes targeting either id are suppressed so a stale
// debounced write cannot clobber the merge result, and a reentrant merge on
// the same source no-ops instead of stacking.
type mergeGuard struct {
	mu     sync.Mutex
	held   bool
	source string
	target string
}

// TryLock attempts to acquire the guard for a merge of source into target.
// Returns false if any merge is already in flight.
func (g *mergeGuard) TryLock(source, target string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return false
	}
	g.held = true
	g.source = source
	g.target = target
	return true
}

// Unlock releases the guard. Safe to call on all exit paths; releasing an
// unheld guard is a no-op.
func (g *mergeGuard) Unlock() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = false
	g.source = ""
	g.target = ""
}

// Held reports whether id is one side of the in-flight merge.
func (g *mergeGuard) Held(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held && (id == g.source || id == g.target)
}
