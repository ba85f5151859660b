package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitter_DeliveryOrder(t *testing.T) {
	e := NewEmitter()

	var order []string
	first := &Listener{Kind: KindStart, Handle: func(Event) { order = append(order, "first") }}
	second := &Listener{Kind: KindStart, Handle: func(Event) { order = append(order, "second") }}
	third := &Listener{Kind: KindAny, Handle: func(Event) { order = append(order, "third") }}

	e.Attach(first)
	e.Attach(second)
	e.Attach(third)

	e.Emit(Event{Kind: KindStart})

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestEmitter_KindFiltering(t *testing.T) {
	e := NewEmitter()

	var starts, completes, all int
	e.Attach(&Listener{Kind: KindStart, Handle: func(Event) { starts++ }})
	e.Attach(&Listener{Kind: KindComplete, Handle: func(Event) { completes++ }})
	e.Attach(&Listener{Kind: KindAny, Handle: func(Event) { all++ }})

	e.Emit(Event{Kind: KindStart})
	e.Emit(Event{Kind: KindDelta})
	e.Emit(Event{Kind: KindComplete})

	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, completes)
	assert.Equal(t, 3, all)
}

func TestEmitter_AttachIdempotent(t *testing.T) {
	e := NewEmitter()

	var calls []string
	a := &Listener{Kind: KindData, Handle: func(Event) { calls = append(calls, "a") }}
	b := &Listener{Kind: KindData, Handle: func(Event) { calls = append(calls, "b") }}

	e.Attach(a)
	e.Attach(b)
	// Re-attaching must neither duplicate delivery nor move the listener.
	e.Attach(a)

	e.Emit(Event{Kind: KindData})

	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestEmitter_DetachUnknownIsNoOp(t *testing.T) {
	e := NewEmitter()

	var calls int
	attached := &Listener{Kind: KindWarn, Handle: func(Event) { calls++ }}
	never := &Listener{Kind: KindWarn, Handle: func(Event) { calls += 100 }}

	e.Attach(attached)
	e.Detach(never)
	e.Emit(Event{Kind: KindWarn})

	assert.Equal(t, 1, calls)

	e.Detach(attached)
	e.Emit(Event{Kind: KindWarn})

	assert.Equal(t, 1, calls)
}

func TestEmitter_HandlerPanicIsolated(t *testing.T) {
	e := NewEmitter()

	var delivered bool
	e.Attach(&Listener{Kind: KindStart, Handle: func(Event) { panic("boom") }})
	e.Attach(&Listener{Kind: KindStart, Handle: func(Event) { delivered = true }})

	assert.NotPanics(t, func() {
		e.Emit(Event{Kind: KindStart})
	})
	assert.True(t, delivered)
}

func TestEmitter_SameHandlerDifferentListeners(t *testing.T) {
	e := NewEmitter()

	var calls int
	handler := func(Event) { calls++ }

	// Two distinct listeners wrapping the same handler are independent
	// registrations.
	e.Attach(&Listener{Kind: KindStart, Handle: handler})
	e.Attach(&Listener{Kind: KindStart, Handle: handler})

	e.Emit(Event{Kind: KindStart})

	assert.Equal(t, 2, calls)
}
