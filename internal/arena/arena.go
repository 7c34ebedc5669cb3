package arena

import (
	"fmt"

	"github.com/bruce-go/scripthost/internal/core/slot"
	"go.uber.org/zap"
)

// ErrCapacityExceeded is returned by Allocate when the arena is full.
var ErrCapacityExceeded = slot.ErrCapacityExceeded

// Resource is a natively allocated object owned by the arena. Close performs the
// driver-specific teardown and is called exactly once per allocation.
type Resource interface {
	Kind() string
	Close() error
}

// Arena owns native resources in a fixed-capacity slot table addressed by
// generation-checked handles. Single-goroutine access only (script host thread).
type Arena struct {
	table *slot.Table[Resource]
	log   *zap.Logger
}

// New creates an arena with room for capacity resources.
func New(capacity int, log *zap.Logger) *Arena {
	return &Arena{
		table: slot.NewTable[Resource](capacity),
		log:   log,
	}
}

// Allocate takes ownership of r and returns its handle. On failure nothing is
// stored and ownership of r stays with the caller.
func (a *Arena) Allocate(r Resource) (slot.Handle, error) {
	h, err := a.table.Insert(r)
	if err != nil {
		return slot.Handle{}, fmt.Errorf("allocate %s: %w", r.Kind(), err)
	}
	return h, nil
}

// Get returns the resource behind h, or false for a stale handle.
func (a *Arena) Get(h slot.Handle) (Resource, bool) {
	return a.table.Get(h)
}

// Lookup returns the resource behind h if it is live and of type T.
func Lookup[T Resource](a *Arena, h slot.Handle) (T, bool) {
	var zero T
	r, ok := a.table.Get(h)
	if !ok {
		return zero, false
	}
	t, ok := r.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// Release tears down the resource behind h and frees its slot. Releasing a
// stale handle is a silent no-op returning false.
func (a *Arena) Release(h slot.Handle) bool {
	r, ok := a.table.Remove(h)
	if !ok {
		return false
	}
	if err := r.Close(); err != nil {
		a.log.Warn("resource teardown failed",
			zap.String("kind", r.Kind()),
			zap.Uint32("index", h.Index),
			zap.Error(err))
	}
	return true
}

// ReleaseAll releases every occupied slot and returns how many were freed.
func (a *Arena) ReleaseAll() int {
	n := 0
	for _, h := range a.table.Handles() {
		if a.Release(h) {
			n++
		}
	}
	return n
}

// CountKind returns the number of live resources of the given kind.
func (a *Arena) CountKind(kind string) int {
	n := 0
	a.table.Each(func(_ slot.Handle, r Resource) bool {
		if r.Kind() == kind {
			n++
		}
		return true
	})
	return n
}

// Each visits live resources in slot order until fn returns false.
func (a *Arena) Each(fn func(slot.Handle, Resource) bool) {
	a.table.Each(fn)
}

func (a *Arena) Len() int { return a.table.Len() }
func (a *Arena) Cap() int { return a.table.Cap() }
