// Package bridge couples script-visible wrapper values to arena slots and
// guarantees each slot is released exactly once, either by an explicit close
// from script code or by the garbage collector reclaiming the wrapper.
//
// Finalizers run on the Go runtime's finalizer goroutine, never on the script
// host goroutine that owns the arena. They therefore only enqueue the handle;
// Collect performs the release on the host goroutine.
package bridge

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/bruce-go/scripthost/internal/arena"
	"github.com/bruce-go/scripthost/internal/core/event"
	"github.com/bruce-go/scripthost/internal/core/slot"
	"go.uber.org/zap"
)

// ErrClosed is returned by Wrap after Shutdown.
var ErrClosed = errors.New("bridge closed")

// released is the sentinel stored in a Wrapper once its handle is gone.
const released = 0

// Wrapper is the private state behind one script value. It is the only
// legitimate holder of its handle.
type Wrapper struct {
	kind string
	id   atomic.Uint64 // packed slot.Handle, or released
}

// Kind returns the resource kind the wrapper was created for.
func (w *Wrapper) Kind() string { return w.kind }

// Handle returns the wrapped handle, or the zero handle once released.
func (w *Wrapper) Handle() slot.Handle {
	return slot.Unpack(w.id.Load())
}

// Released reports whether the wrapper no longer owns a slot.
func (w *Wrapper) Released() bool { return w.id.Load() == released }

type pending struct {
	handle slot.Handle
	kind   string
}

// Bridge owns the finalization protocol for one arena.
type Bridge struct {
	arena *arena.Arena
	bus   *event.Bus
	log   *zap.Logger

	mu     sync.Mutex // guards queue and closed; shared with finalizers
	queue  []pending
	closed bool
}

// New creates a bridge over a. bus may be nil.
func New(a *arena.Arena, bus *event.Bus, log *zap.Logger) *Bridge {
	return &Bridge{
		arena: a,
		bus:   bus,
		log:   log,
		queue: make([]pending, 0, 16),
	}
}

// Wrap allocates r in the arena and returns the wrapper that owns it. When the
// allocation fails, r is closed before the error is returned, so no native
// resource outlives a failed construction.
func (b *Bridge) Wrap(r arena.Resource) (*Wrapper, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		b.closeOrphan(r)
		return nil, ErrClosed
	}

	h, err := b.arena.Allocate(r)
	if err != nil {
		b.closeOrphan(r)
		return nil, err
	}

	w := &Wrapper{kind: r.Kind()}
	w.id.Store(h.Pack())
	runtime.SetFinalizer(w, b.finalize)
	event.Emit(b.bus, event.ResourceAllocated{Kind: w.kind, Handle: h})
	return w, nil
}

func (b *Bridge) closeOrphan(r arena.Resource) {
	if err := r.Close(); err != nil {
		b.log.Warn("orphan resource teardown failed", zap.String("kind", r.Kind()), zap.Error(err))
	}
}

// Close is the explicit release path. The wrapper's handle is swapped for the
// released sentinel before the arena is touched, so a later finalizer pass
// never re-derives the handle. Returns false if w was already released.
func (b *Bridge) Close(w *Wrapper) bool {
	if w == nil {
		return false
	}
	id := w.id.Swap(released)
	if id == released {
		return false
	}
	runtime.SetFinalizer(w, nil)

	h := slot.Unpack(id)
	if !b.arena.Release(h) {
		return false
	}
	event.Emit(b.bus, event.ResourceReleased{Kind: w.kind, Handle: h, Reason: event.ReleaseClose})
	return true
}

// finalize runs on the finalizer goroutine.
func (b *Bridge) finalize(w *Wrapper) {
	id := w.id.Swap(released)
	if id == released {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.queue = append(b.queue, pending{handle: slot.Unpack(id), kind: w.kind})
}

// Pending returns the number of finalized handles awaiting Collect.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Collect releases every handle queued by finalizers and returns how many
// slots were freed. Must be called from the script host goroutine.
func (b *Bridge) Collect() int {
	b.mu.Lock()
	batch := b.queue
	b.queue = make([]pending, 0, cap(batch))
	b.mu.Unlock()

	n := 0
	for _, p := range batch {
		if !b.arena.Release(p.handle) {
			continue
		}
		n++
		event.Emit(b.bus, event.ResourceReleased{Kind: p.kind, Handle: p.handle, Reason: event.ReleaseFinalizer})
	}
	if n > 0 {
		b.log.Debug("released finalized resources", zap.Int("count", n))
	}
	return n
}

// Shutdown releases every occupied slot. Wrappers still reachable from script
// values resolve to nothing afterwards and their finalizers become no-ops.
func (b *Bridge) Shutdown() int {
	b.mu.Lock()
	b.closed = true
	b.queue = nil
	b.mu.Unlock()

	n := 0
	for _, h := range b.handles() {
		r, ok := b.arena.Get(h)
		if !ok {
			continue
		}
		kind := r.Kind()
		if b.arena.Release(h) {
			n++
			event.Emit(b.bus, event.ResourceReleased{Kind: kind, Handle: h, Reason: event.ReleaseTeardown})
		}
	}
	return n
}

func (b *Bridge) handles() []slot.Handle {
	var hs []slot.Handle
	b.arena.Each(func(h slot.Handle, _ arena.Resource) bool {
		hs = append(hs, h)
		return true
	})
	return hs
}
