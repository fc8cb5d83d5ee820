package events

import "agentlend/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Renderer is implemented by events that can be flattened into the canonical
// attribute map consumed by archives and notification collaborators.
type Renderer interface {
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. archives,
// notification dispatch).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Render converts an event into its attribute form. Events that do not
// implement Renderer are rendered with their type only.
func Render(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	if r, ok := evt.(Renderer); ok {
		if rendered := r.Event(); rendered != nil {
			return rendered
		}
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}

// MultiEmitter fans a single event out to several emitters in order.
type MultiEmitter []Emitter

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Buffer collects events while a state transition is staged. Flush forwards
// them to the target emitter once the transition commits; Reset drops them
// when it reverts.
type Buffer struct {
	pending []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.pending = append(b.pending, evt)
}

// Len reports the number of staged events.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.pending)
}

// Flush forwards the staged events to target in emission order and clears the
// buffer.
func (b *Buffer) Flush(target Emitter) {
	if b == nil {
		return
	}
	pending := b.pending
	b.pending = nil
	if target == nil {
		return
	}
	for _, evt := range pending {
		target.Emit(evt)
	}
}

// Reset discards the staged events.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.pending = nil
}

// Recorder retains every emitted event. Hosts use it to print the events of a
// single invocation; tests use it to assert emission.
type Recorder struct {
	Events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.Events = append(r.Events, evt)
}

// Types returns the event types in emission order.
func (r *Recorder) Types() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Events))
	for _, evt := range r.Events {
		out = append(out, evt.EventType())
	}
	return out
}
