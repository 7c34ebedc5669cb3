package slot

import (
	"container/heap"
	"errors"
)

// ErrCapacityExceeded is returned by Insert when every slot is occupied.
var ErrCapacityExceeded = errors.New("capacity exceeded")

type entry[T any] struct {
	value      T
	generation uint32
	occupied   bool
}

// Table is a fixed-capacity slot table addressed by generation-checked handles.
// Freed indices are reused lowest-first before the table grows into untouched
// slots. Not safe for concurrent use.
type Table[T any] struct {
	slots    []entry[T]
	freeList indexHeap
	capacity int
	live     int
}

// NewTable creates a table holding at most capacity values. The capacity is
// clamped to 1..MaxCapacity.
func NewTable[T any](capacity int) *Table[T] {
	if capacity < 1 {
		capacity = 1
	}
	if capacity > MaxCapacity {
		capacity = MaxCapacity
	}
	return &Table[T]{
		slots:    make([]entry[T], 0, capacity),
		freeList: make(indexHeap, 0, 16),
		capacity: capacity,
	}
}

// Insert places v into a free slot and returns its handle. When no slot is free
// the table is left untouched and ErrCapacityExceeded is returned.
func (t *Table[T]) Insert(v T) (Handle, error) {
	var idx uint32
	switch {
	case len(t.freeList) > 0:
		idx = heap.Pop(&t.freeList).(uint32)
	case len(t.slots) < t.capacity:
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, entry[T]{})
	default:
		return Handle{}, ErrCapacityExceeded
	}

	e := &t.slots[idx]
	e.generation = nextGeneration(e.generation)
	e.value = v
	e.occupied = true
	t.live++
	return Handle{Index: idx, Generation: e.generation}, nil
}

func (t *Table[T]) lookup(h Handle) *entry[T] {
	if int64(h.Index) >= int64(len(t.slots)) {
		return nil
	}
	e := &t.slots[h.Index]
	if !e.occupied || e.generation != h.Generation {
		return nil
	}
	return e
}

// Get returns the value behind h, or false for a stale or out-of-range handle.
func (t *Table[T]) Get(h Handle) (T, bool) {
	if e := t.lookup(h); e != nil {
		return e.value, true
	}
	var zero T
	return zero, false
}

// Ptr returns a pointer to the value behind h for in-place mutation. The
// pointer is only valid until the next Insert or Remove.
func (t *Table[T]) Ptr(h Handle) (*T, bool) {
	if e := t.lookup(h); e != nil {
		return &e.value, true
	}
	return nil, false
}

// Remove empties the slot behind h and returns its previous value. Removing a
// stale handle is a no-op that returns false.
func (t *Table[T]) Remove(h Handle) (T, bool) {
	var zero T
	e := t.lookup(h)
	if e == nil {
		return zero, false
	}
	v := e.value
	e.value = zero
	e.occupied = false
	e.generation = nextGeneration(e.generation)
	heap.Push(&t.freeList, h.Index)
	t.live--
	return v, true
}

// Each calls fn for every occupied slot in ascending index order until fn
// returns false. fn must not insert or remove.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	for i := range t.slots {
		e := &t.slots[i]
		if !e.occupied {
			continue
		}
		if !fn(Handle{Index: uint32(i), Generation: e.generation}, e.value) {
			return
		}
	}
}

// Handles returns the handles of all occupied slots in ascending index order.
func (t *Table[T]) Handles() []Handle {
	out := make([]Handle, 0, t.live)
	t.Each(func(h Handle, _ T) bool {
		out = append(out, h)
		return true
	})
	return out
}

// Len returns the number of occupied slots.
func (t *Table[T]) Len() int { return t.live }

// Cap returns the fixed capacity.
func (t *Table[T]) Cap() int { return t.capacity }

// indexHeap is a min-heap of free slot indices.
type indexHeap []uint32

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *indexHeap) Push(x any) {
	*h = append(*h, x.(uint32))
}

func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
