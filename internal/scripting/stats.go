package scripting

import "github.com/bruce-go/scripthost/internal/core/event"

// CallbackFailure is a deferred callback that raised.
type CallbackFailure struct {
	Timer uint64
	Err   error
}

// Stats counts lifecycle events delivered so far. Events are delivered at the
// end of each pass and on Close.
type Stats struct {
	Allocations       int
	ReleasedClose     int
	ReleasedFinalizer int
	ReleasedTeardown  int
	TimersFired       int
	Failures          []CallbackFailure
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	s := e.stats
	s.Failures = append([]CallbackFailure(nil), e.stats.Failures...)
	return s
}

func (e *Engine) subscribeStats() {
	event.Subscribe(e.bus, func(event.ResourceAllocated) {
		e.stats.Allocations++
	})
	event.Subscribe(e.bus, func(ev event.ResourceReleased) {
		switch ev.Reason {
		case event.ReleaseClose:
			e.stats.ReleasedClose++
		case event.ReleaseFinalizer:
			e.stats.ReleasedFinalizer++
		case event.ReleaseTeardown:
			e.stats.ReleasedTeardown++
		}
	})
	event.Subscribe(e.bus, func(event.TimerFired) {
		e.stats.TimersFired++
	})
	event.Subscribe(e.bus, func(ev event.CallbackFailed) {
		e.stats.Failures = append(e.stats.Failures, CallbackFailure{Timer: ev.ID, Err: ev.Err})
	})
}
