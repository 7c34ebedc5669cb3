package event

import (
	"reflect"
	"sync"
)

type queued struct {
	typ   reflect.Type
	value any
}

// Bus is a double-buffered lifecycle event bus. Events emitted during a host
// pass sit in the back buffer until the pass reaches its dispatch phase, and
// are delivered in emission order across all event types. Emit and delivery
// happen on the script host goroutine; Subscribe may be called from anywhere.
type Bus struct {
	mu       sync.Mutex // guards handlers
	handlers map[reflect.Type][]func(any)

	front []queued
	back  []queued
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[reflect.Type][]func(any))}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Emit queues ev for the next dispatch. A nil bus drops it.
func Emit[T any](b *Bus, ev T) {
	if b == nil {
		return
	}
	b.back = append(b.back, queued{typ: typeOf[T](), value: ev})
}

// Subscribe registers fn for every event of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := typeOf[T]()
	b.handlers[t] = append(b.handlers[t], func(v any) { fn(v.(T)) })
}

// Pending returns the number of events waiting for the next swap.
func (b *Bus) Pending() int { return len(b.back) }

// SwapBuffers makes the queued events deliverable and starts a new batch.
func (b *Bus) SwapBuffers() {
	b.front, b.back = b.back, b.front[:0]
}

// DispatchAll delivers the swapped batch. Events emitted by handlers land in
// the next batch.
func (b *Bus) DispatchAll() {
	b.mu.Lock()
	handlers := make(map[reflect.Type][]func(any), len(b.handlers))
	for t, hs := range b.handlers {
		handlers[t] = hs
	}
	b.mu.Unlock()

	batch := b.front
	for _, q := range batch {
		for _, h := range handlers[q.typ] {
			h(q.value)
		}
	}
	clear(batch)
	b.front = batch[:0]
}

// Flush swaps and dispatches in one step.
func (b *Bus) Flush() {
	b.SwapBuffers()
	b.DispatchAll()
}
