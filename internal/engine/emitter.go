package engine

import "context"

// EventBlocksChanged carries a domain.BlocksChanged payload after every
// successful mutation.
const EventBlocksChanged = "blocks:changed"

// ─────────────────────────────────────────────────────────────
// EventEmitter — decouples the engine from its host surface
// ─────────────────────────────────────────────────────────────

// EventEmitter is an interface for broadcasting engine events to external
// listeners (alternate projections, caches, activity trackers). The engine
// receives this interface instead of a concrete transport, which makes it
// independently testable with a mock emitter. Listeners must tolerate
// duplicate delivery.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// NoopEmitter discards all events. Used when no listener is attached.
type NoopEmitter struct{}

func (NoopEmitter) Emit(_ context.Context, _ string, _ any) {}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}
