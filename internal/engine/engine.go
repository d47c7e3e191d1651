package engine

import (
	"context"
	"log"
	"sync"

	"oxinot/internal/domain"
	"oxinot/internal/index"
)

// ─────────────────────────────────────────────────────────────
// Engine — mutation orchestrator for one open page
// ─────────────────────────────────────────────────────────────

// Engine owns a page's tree index, focus state, and draft table, and is the
// only component allowed to mutate them. Every operation applies an
// optimistic local edit, calls the gateway, and reconciles with the
// canonical response or rolls back. One Engine per open page lifetime.
type Engine struct {
	pageID  string
	gateway domain.Gateway
	emitter EventEmitter

	// mu protects the index, focus state, and draft table. It is released
	// across gateway calls — those are the engine's suspension points — so
	// operations on different blocks interleave freely.
	mu     sync.Mutex
	idx    *index.Index
	focus  focusState
	drafts map[string]string
	merge  mergeGuard
}

// New constructs an Engine for one page. Call Load before use.
func New(pageID string, gateway domain.Gateway, emitter EventEmitter) *Engine {
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	return &Engine{
		pageID:  pageID,
		gateway: gateway,
		emitter: emitter,
		idx:     index.New(),
		drafts:  make(map[string]string),
	}
}

// PageID returns the page this engine is bound to.
func (e *Engine) PageID() string { return e.pageID }

// Load populates the index from the authoritative store.
func (e *Engine) Load(ctx context.Context) error {
	blocks, err := e.gateway.LoadPageBlocks(ctx, e.pageID)
	if err != nil {
		return domain.Persistence("load page", err)
	}
	e.mu.Lock()
	e.idx.Build(blocks)
	e.mu.Unlock()
	return nil
}

// Reload rebuilds the whole index from the store and broadcasts the fresh
// state. Drafts survive a reload; focus is dropped if its block is gone.
func (e *Engine) Reload(ctx context.Context) error {
	blocks, err := e.gateway.LoadPageBlocks(ctx, e.pageID)
	if err != nil {
		return domain.Persistence("reload page", err)
	}
	e.mu.Lock()
	e.idx.Build(blocks)
	for id := range e.drafts {
		if e.idx.Get(id) == nil {
			delete(e.drafts, id)
		}
	}
	if e.focus.blockID != "" && e.idx.Get(e.focus.blockID) == nil {
		e.focus = focusState{}
	}
	e.mu.Unlock()
	e.broadcast(ctx, blocks, nil)
	return nil
}

// reloadQuietly is the failure-path reload: a best-effort resync that never
// masks the original error.
func (e *Engine) reloadQuietly(ctx context.Context) {
	if err := e.Reload(ctx); err != nil {
		log.Printf("[engine] reload after failure: %v", err)
	}
}

// Block returns a copy of a block by id, or nil.
func (e *Engine) Block(id string) *domain.Block {
	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.idx.Get(id)
	if b == nil {
		return nil
	}
	copied := *b
	return &copied
}

// Blocks returns every block of the page in unspecified order.
func (e *Engine) Blocks() []domain.Block {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idx.All()
}

// BlocksDepthFirst returns every block of the page in depth-first sibling
// order, including those hidden under collapsed parents.
func (e *Engine) BlocksDepthFirst() []domain.Block {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idx.DepthFirst()
}

// VisibleBlocks returns the depth-first visible projection, skipping
// collapsed subtrees.
func (e *Engine) VisibleBlocks() []domain.Block {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idx.Visible()
}

// Depth returns the nesting depth of a block (0 at root level).
func (e *Engine) Depth(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idx.Depth(id)
}

// PreviousVisible returns a copy of the block preceding id in depth-first
// visible order, or nil at the top of the page.
func (e *Engine) PreviousVisible(id string) *domain.Block {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b := e.idx.PreviousVisible(id); b != nil {
		copied := *b
		return &copied
	}
	return nil
}

// NextVisible returns a copy of the block following id in depth-first
// visible order, or nil at the bottom of the page.
func (e *Engine) NextVisible(id string) *domain.Block {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b := e.idx.Next(id); b != nil {
		copied := *b
		return &copied
	}
	return nil
}

// Validate checks the index invariants. A non-nil result means the only
// safe recovery is Reload.
func (e *Engine) Validate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idx.Validate()
}

// broadcast emits the blocks-changed event for external listeners.
func (e *Engine) broadcast(ctx context.Context, updated []domain.Block, deleted []string) {
	e.emitter.Emit(ctx, EventBlocksChanged, domain.BlocksChanged{
		UpdatedOrCreated: updated,
		DeletedIDs:       deleted,
	})
}

// ── optimistic staging ─────────────────────────────────────
//
// Single-record mutations run in two strictly separated phases: phase one
// (synchronous, pre-suspension) applies the speculative local state and
// returns a handle; phase two confirms with the canonical record or rolls
// the handle back. No caller ever observes a half-applied change.

// staged is the rollback handle for one optimistically mutated block.
type staged struct {
	prior     *domain.Block // deep copy, nil for a created block
	priorKey  string
	stagedKey string
	id        string
}

// stage snapshots a block, applies mutate to the live record, rebuilds the
// affected parent groups, and returns the rollback handle. Caller holds mu.
func (e *Engine) stage(b *domain.Block, mutate func(*domain.Block)) *staged {
	prior := *b
	if b.Metadata != nil {
		prior.Metadata = make(map[string]string, len(b.Metadata))
		for k, v := range b.Metadata {
			prior.Metadata[k] = v
		}
	}
	h := &staged{prior: &prior, priorKey: index.ParentKeyOf(b), id: b.ID}
	mutate(b)
	h.stagedKey = index.ParentKeyOf(b)
	e.idx.RebuildFor(h.priorKey, h.stagedKey)
	return h
}

// confirm replaces the staged record with the gateway's canonical one.
// Caller holds mu.
func (e *Engine) confirm(h *staged, canonical *domain.Block) {
	copied := *canonical
	e.idx.Put(&copied)
	e.idx.RebuildFor(h.priorKey, h.stagedKey, index.ParentKeyOf(&copied))
}

// rollback restores the pre-staging snapshot. Caller holds mu.
func (e *Engine) rollback(h *staged) {
	e.idx.Put(h.prior)
	e.idx.RebuildFor(h.priorKey, h.stagedKey)
}
