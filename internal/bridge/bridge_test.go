package bridge

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/bruce-go/scripthost/internal/arena"
	"github.com/bruce-go/scripthost/internal/core/event"
	"go.uber.org/zap"
)

type testResource struct {
	kind   string
	closed *int
}

func (r *testResource) Kind() string { return r.kind }

func (r *testResource) Close() error {
	*r.closed++
	return nil
}

func newBridge(capacity int) (*Bridge, *arena.Arena, *event.Bus) {
	a := arena.New(capacity, zap.NewNop())
	bus := event.NewBus()
	return New(a, bus, zap.NewNop()), a, bus
}

func TestBridge_CloseReleasesOnce(t *testing.T) {
	b, a, bus := newBridge(4)
	var reasons []event.ReleaseReason
	event.Subscribe(bus, func(e event.ResourceReleased) { reasons = append(reasons, e.Reason) })

	closed := 0
	w, err := b.Wrap(&testResource{kind: "sprite", closed: &closed})
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if _, ok := a.Get(w.Handle()); !ok {
		t.Fatal("live wrapper does not resolve")
	}

	if !b.Close(w) {
		t.Fatal("first Close returned false")
	}
	if b.Close(w) {
		t.Fatal("second Close returned true")
	}
	if closed != 1 {
		t.Fatalf("teardown ran %d times, want 1", closed)
	}
	if a.Len() != 0 {
		t.Fatalf("arena Len = %d, want 0", a.Len())
	}
	if !w.Released() || !w.Handle().IsZero() {
		t.Fatal("wrapper still holds a handle after Close")
	}
	if _, ok := a.Get(w.Handle()); ok {
		t.Fatal("wrapper resolved after Close")
	}

	// Simulate a late finalizer pass on an explicitly closed wrapper.
	b.finalize(w)
	if b.Pending() != 0 {
		t.Fatal("finalizer enqueued a closed wrapper")
	}

	bus.Flush()
	if len(reasons) != 1 || reasons[0] != event.ReleaseClose {
		t.Fatalf("release events = %v, want [close]", reasons)
	}
}

func TestBridge_WrapFailureClosesResource(t *testing.T) {
	b, _, _ := newBridge(1)
	closed := 0
	if _, err := b.Wrap(&testResource{kind: "gif", closed: &closed}); err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	extraClosed := 0
	w, err := b.Wrap(&testResource{kind: "gif", closed: &extraClosed})
	if !errors.Is(err, arena.ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
	if w != nil {
		t.Fatal("Wrap returned a wrapper on failure")
	}
	if extraClosed != 1 {
		t.Fatalf("orphan teardown ran %d times, want 1", extraClosed)
	}
}

func TestBridge_FinalizeThenCollect(t *testing.T) {
	b, a, _ := newBridge(2)
	closed := 0
	w, _ := b.Wrap(&testResource{kind: "sprite", closed: &closed})

	b.finalize(w)
	if closed != 0 {
		t.Fatal("finalizer released on the wrong goroutine")
	}
	if b.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", b.Pending())
	}
	if n := b.Collect(); n != 1 {
		t.Fatalf("Collect = %d, want 1", n)
	}
	if closed != 1 || a.Len() != 0 {
		t.Fatalf("closed=%d len=%d after Collect", closed, a.Len())
	}
	if b.Close(w) {
		t.Fatal("Close after finalize should be a no-op")
	}
	if closed != 1 {
		t.Fatal("double teardown")
	}
}

func TestBridge_GarbageCollectedWrapperIsReleased(t *testing.T) {
	b, a, _ := newBridge(4)
	closed := 0
	func() {
		_, err := b.Wrap(&testResource{kind: "sprite", closed: &closed})
		if err != nil {
			t.Fatalf("Wrap: %v", err)
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for a.Len() > 0 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
		b.Collect()
	}
	if a.Len() != 0 {
		t.Fatal("unreachable wrapper was never released")
	}
	if closed != 1 {
		t.Fatalf("teardown ran %d times, want 1", closed)
	}
}

func TestBridge_ShutdownReleasesEverything(t *testing.T) {
	b, a, _ := newBridge(4)
	closed := 0
	w1, _ := b.Wrap(&testResource{kind: "sprite", closed: &closed})
	w2, _ := b.Wrap(&testResource{kind: "gif", closed: &closed})
	b.Close(w1)

	if n := b.Shutdown(); n != 1 {
		t.Fatalf("Shutdown released %d, want 1", n)
	}
	if closed != 2 || a.Len() != 0 {
		t.Fatalf("closed=%d len=%d", closed, a.Len())
	}
	if _, ok := a.Get(w2.Handle()); ok {
		t.Fatal("wrapper resolved after Shutdown")
	}

	b.finalize(w2)
	if b.Pending() != 0 {
		t.Fatal("finalizer enqueued after Shutdown")
	}

	lateClosed := 0
	if _, err := b.Wrap(&testResource{kind: "sprite", closed: &lateClosed}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Wrap after Shutdown err = %v, want ErrClosed", err)
	}
	if lateClosed != 1 {
		t.Fatal("resource offered after Shutdown was not torn down")
	}
}

func TestBridge_StaleHandleNeverReachesNewOccupant(t *testing.T) {
	b, _, _ := newBridge(1)
	firstClosed, secondClosed := 0, 0
	w1, _ := b.Wrap(&testResource{kind: "sprite", closed: &firstClosed})
	stale := w1.Handle()
	b.Close(w1)

	w2, err := b.Wrap(&testResource{kind: "sprite", closed: &secondClosed})
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if w2.Handle().Index != stale.Index {
		t.Fatal("expected slot reuse")
	}

	b.queue = append(b.queue, pending{handle: stale, kind: "sprite"})
	if n := b.Collect(); n != 0 {
		t.Fatalf("Collect released %d through a stale handle", n)
	}
	if secondClosed != 0 {
		t.Fatal("new occupant torn down")
	}
}
