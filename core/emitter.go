package core

import "sync"

// Kind identifies the category of an Event.
type Kind string

const (
	// KindStart is emitted when a capability begins executing.
	KindStart Kind = "start"
	// KindDelta carries one streamed content fragment from a model.
	KindDelta Kind = "delta"
	// KindComplete is emitted when a capability finishes (success or failure).
	KindComplete Kind = "complete"
	// KindWarn reports a non-fatal anomaly (e.g. unexpected finish reason).
	KindWarn Kind = "warn"
	// KindData carries arbitrary tool-defined payloads.
	KindData Kind = "data"
	// KindPlan carries a snapshot of a team's plan-step states.
	KindPlan Kind = "plan"
	// KindAny is the wildcard subscription kind matching every event.
	KindAny Kind = "*"
)

// Event is the unit of progress reporting flowing through the fabric. Every
// event carries the emitting capability's hierarchical id and depth plus a
// reference to the capability itself; the remaining fields are kind-specific.
type Event struct {
	Kind   Kind       `json:"kind"`
	ID     string     `json:"id"`    // hierarchical path of the emitter
	Depth  int        `json:"depth"` // nesting depth of the emitter (root = 0)
	Source Capability `json:"-"`     // emitting capability

	Message string         `json:"message,omitempty"` // start, complete, warn
	Args    map[string]any `json:"args,omitempty"`    // start
	Content string         `json:"content,omitempty"` // delta
	Err     error          `json:"-"`                 // complete (failure)
	Data    any            `json:"data,omitempty"`    // data
	Plan    []PlanStep     `json:"plan,omitempty"`    // plan
}

// Handler consumes events delivered by an Emitter.
type Handler func(Event)

// Listener binds a handler to an event kind. Registration identity is the
// *Listener pointer: attaching the same listener twice is a no-op, and a
// listener must be detached with the same pointer it was attached with.
type Listener struct {
	Kind   Kind
	Handle Handler
}

// Emitter is the publish/subscribe channel shared by an entire call tree.
// Delivery is synchronous and in registration order; a panicking handler is
// isolated so it neither blocks later handlers nor reaches the emitting
// capability. A parent capability shares its emitter with every child it
// owns before execution begins.
type Emitter struct {
	mu        sync.Mutex
	listeners []*Listener
}

// NewEmitter creates an empty event fabric.
func NewEmitter() *Emitter { return &Emitter{} }

// Attach registers a listener. Attaching an already-registered listener is a
// no-op, preserving its original position in the delivery order.
func (e *Emitter) Attach(l *Listener) {
	if l == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, existing := range e.listeners {
		if existing == l {
			return
		}
	}

	e.listeners = append(e.listeners, l)
}

// Detach removes a previously attached listener. Detaching an unregistered
// listener is a no-op.
func (e *Emitter) Detach(l *Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, existing := range e.listeners {
		if existing == l {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			return
		}
	}
}

// Emit delivers the event synchronously to every listener whose kind matches
// (or that subscribed with KindAny), in registration order.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	matched := make([]*Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		if l.Kind == ev.Kind || l.Kind == KindAny {
			matched = append(matched, l)
		}
	}
	e.mu.Unlock()

	for _, l := range matched {
		deliver(l, ev)
	}
}

// deliver invokes a single handler, recovering panics so one faulty consumer
// cannot break delivery to the rest of the listeners or the emitter itself.
func deliver(l *Listener, ev Event) {
	defer func() {
		_ = recover()
	}()

	l.Handle(ev)
}
