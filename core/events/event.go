package events

// Event represents a structured state change emitted by the approval service.
// Attributes hold a flat string rendering of the payload so downstream
// consumers (RPC, audit trail, indexers) can decode it without importing the
// originating module.
type Event struct {
	Type       string
	Attributes map[string]string
}

// EventType returns the event's type identifier.
func (e *Event) EventType() string {
	if e == nil {
		return ""
	}
	return e.Type
}

// Emitter broadcasts events to downstream subscribers.
type Emitter interface {
	Emit(*Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(*Event) {}

// Recorder collects emitted events in order. It is intended for tests and for
// adapters that fan events out to more than one sink.
type Recorder struct {
	Events []*Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt *Event) {
	if r == nil || evt == nil {
		return
	}
	r.Events = append(r.Events, evt)
}

// Multi fans a single emission out to every configured emitter. Nil entries
// are skipped.
type Multi []Emitter

// Emit implements the Emitter interface.
func (m Multi) Emit(evt *Event) {
	for _, emitter := range m {
		if emitter == nil {
			continue
		}
		emitter.Emit(evt)
	}
}
