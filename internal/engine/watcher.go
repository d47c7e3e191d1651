package engine

import (
	"context"
	"fmt"
	"log"
	"time"
)

// ─────────────────────────────────────────────────────────────
// Watcher — detects external writes to the open page
// ─────────────────────────────────────────────────────────────

// Watcher polls the store for changes to the engine's page made by another
// actor sharing it (a second process, an automation agent) and reloads the
// engine when the page's fingerprint moves. Reload preserves drafts, so a
// focused block being typed into is not clobbered.
type Watcher struct {
	engine   *Engine
	interval time.Duration
	last     string
	stopCh   chan struct{}
}

// NewWatcher creates a watcher for the engine's page. A zero interval
// defaults to two seconds.
func NewWatcher(e *Engine, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{engine: e, interval: interval}
}

// Start begins the polling loop. The first poll only seeds the fingerprint.
func (w *Watcher) Start(ctx context.Context) {
	w.stopCh = make(chan struct{})
	go w.pollLoop(ctx)
}

// Stop terminates the polling loop.
func (w *Watcher) Stop() {
	if w.stopCh != nil {
		close(w.stopCh)
	}
}

func (w *Watcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.check(ctx)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) check(ctx context.Context) {
	fp, err := w.fingerprint(ctx)
	if err != nil {
		log.Printf("[watch] fingerprint page %s: %v", w.engine.PageID(), err)
		return
	}
	if w.last == "" {
		w.last = fp
		return
	}
	if fp == w.last {
		return
	}
	w.last = fp
	if err := w.engine.Reload(ctx); err != nil {
		log.Printf("[watch] reload page %s: %v", w.engine.PageID(), err)
	}
}

// fingerprint summarizes the page as block count plus the newest update
// time, enough to notice any external create/update/delete.
func (w *Watcher) fingerprint(ctx context.Context) (string, error) {
	blocks, err := w.engine.gateway.LoadPageBlocks(ctx, w.engine.PageID())
	if err != nil {
		return "", err
	}
	var newest time.Time
	for _, b := range blocks {
		if b.UpdatedAt.After(newest) {
			newest = b.UpdatedAt
		}
	}
	return fmt.Sprintf("%d:%s", len(blocks), newest.UTC().Format(time.RFC3339Nano)), nil
}
