// Package timer implements the cooperative deferred-callback scheduler that the
// script host drains after every evaluation pass.
package timer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/bruce-go/scripthost/internal/core/event"
	"github.com/bruce-go/scripthost/internal/core/slot"
	"go.uber.org/zap"
)

var (
	// ErrCapacityExceeded is returned by Schedule when every timer slot is armed.
	ErrCapacityExceeded = slot.ErrCapacityExceeded
	// ErrDrainReentered is returned when Drain is called from inside a callback.
	ErrDrainReentered = errors.New("timer: drain re-entered")
	ErrNilCallback    = errors.New("timer: nil callback")
)

const (
	DefaultCapacity = 16
	DefaultMaxSleep = time.Second

	// MaxDelay is the longest delay Schedule honours, the largest whole
	// number of milliseconds a Duration can hold. Longer delays saturate.
	MaxDelay = time.Duration(math.MaxInt64/int64(time.Millisecond)) * time.Millisecond
)

// Callback is a deferred unit of script work.
type Callback func() error

// ErrorHandler receives errors returned (or panics raised) by callbacks.
type ErrorHandler func(id uint64, err error)

type entry struct {
	deadline time.Time
	seq      uint64
	cb       Callback
}

// Options configures a Scheduler. Zero values select the defaults.
type Options struct {
	Capacity int
	MaxSleep time.Duration
	Clock    Clock
	OnError  ErrorHandler
	// AfterCallback runs after every fired callback, on the draining goroutine.
	AfterCallback func()
	Bus           *event.Bus
	Log           *zap.Logger
}

// Scheduler holds a fixed number of armed callbacks. A timer id is the packed
// slot handle, so the id of a fired timer never matches a later timer that
// reuses the same slot. Single-goroutine access only.
type Scheduler struct {
	table    *slot.Table[entry]
	clock    Clock
	maxSleep time.Duration
	onError  ErrorHandler
	after    func()
	bus      *event.Bus
	log      *zap.Logger

	seq      uint64
	draining bool
}

func NewScheduler(opts Options) *Scheduler {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.MaxSleep <= 0 {
		opts.MaxSleep = DefaultMaxSleep
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Scheduler{
		table:    slot.NewTable[entry](opts.Capacity),
		clock:    opts.Clock,
		maxSleep: opts.MaxSleep,
		onError:  opts.OnError,
		after:    opts.AfterCallback,
		bus:      opts.Bus,
		log:      opts.Log,
	}
}

// Schedule arms cb to fire once delay has elapsed. A zero or negative delay
// fires on the next drain pass, never synchronously; delays beyond MaxDelay
// are treated as MaxDelay.
func (s *Scheduler) Schedule(cb Callback, delay time.Duration) (uint64, error) {
	if cb == nil {
		return 0, ErrNilCallback
	}
	delay = min(max(delay, 0), MaxDelay)
	s.seq++
	h, err := s.table.Insert(entry{
		deadline: deadlineAfter(s.clock.Now(), delay),
		seq:      s.seq,
		cb:       cb,
	})
	if err != nil {
		return 0, fmt.Errorf("schedule: %w", err)
	}
	return h.Pack(), nil
}

// Cancel disarms the timer. It returns false for ids that already fired, were
// already cancelled or never existed. Once Cancel returns true the callback
// will not run.
func (s *Scheduler) Cancel(id uint64) bool {
	_, ok := s.table.Remove(slot.Unpack(id))
	return ok
}

// CancelAll disarms every timer and returns how many were armed.
func (s *Scheduler) CancelAll() int {
	n := 0
	for _, h := range s.table.Handles() {
		if _, ok := s.table.Remove(h); ok {
			n++
		}
	}
	return n
}

// Armed returns the number of armed timers.
func (s *Scheduler) Armed() int { return s.table.Len() }

// Cap returns the fixed timer capacity.
func (s *Scheduler) Cap() int { return s.table.Cap() }

type dueEntry struct {
	handle   slot.Handle
	deadline time.Time
	seq      uint64
}

// Drain fires due callbacks in deadline order, equal deadlines in registration
// order, until no timer is armed. Between rounds it sleeps until the earliest
// deadline, never longer than the configured maximum. Callback failures are
// reported and draining continues. Drain returns ctx.Err() if ctx is cancelled
// while timers are still armed.
func (s *Scheduler) Drain(ctx context.Context) error {
	if s.draining {
		return ErrDrainReentered
	}
	s.draining = true
	defer func() { s.draining = false }()

	for {
		if s.table.Len() == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		now := s.clock.Now()
		due, earliest := s.collectDue(now)
		if len(due) == 0 {
			wait := earliest.Sub(now)
			if wait > s.maxSleep {
				wait = s.maxSleep
			}
			if err := s.clock.Sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		for _, d := range due {
			// An earlier callback in this round may have cancelled it.
			e, ok := s.table.Remove(d.handle)
			if !ok {
				continue
			}
			s.fire(d.handle.Pack(), e, now)
		}
	}
}

// collectDue returns the entries whose deadline has passed, sorted for firing,
// and the earliest deadline among the rest.
func (s *Scheduler) collectDue(now time.Time) ([]dueEntry, time.Time) {
	var due []dueEntry
	var earliest time.Time
	s.table.Each(func(h slot.Handle, e entry) bool {
		if !e.deadline.After(now) {
			due = append(due, dueEntry{handle: h, deadline: e.deadline, seq: e.seq})
			return true
		}
		if earliest.IsZero() || e.deadline.Before(earliest) {
			earliest = e.deadline
		}
		return true
	})
	sort.Slice(due, func(i, j int) bool {
		if !due[i].deadline.Equal(due[j].deadline) {
			return due[i].deadline.Before(due[j].deadline)
		}
		return due[i].seq < due[j].seq
	})
	return due, earliest
}

func (s *Scheduler) fire(id uint64, e entry, now time.Time) {
	err := safeCall(e.cb)
	event.Emit(s.bus, event.TimerFired{ID: id, Late: now.Sub(e.deadline)})
	if err != nil {
		s.log.Warn("timer callback failed", zap.Uint64("timer", id), zap.Error(err))
		event.Emit(s.bus, event.CallbackFailed{ID: id, Err: err})
		if s.onError != nil {
			s.onError(id, err)
		}
	}
	if s.after != nil {
		s.after()
	}
}

// deadlineAfter returns now+delay, saturating instead of wrapping past the
// largest representable time.
func deadlineAfter(now time.Time, delay time.Duration) time.Time {
	if now.After(maxTime.Add(-delay)) {
		return maxTime
	}
	return now.Add(delay)
}

var maxTime = time.Unix(1<<63-62135596801, 999999999)

func safeCall(cb Callback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("timer callback panic: %v", r)
		}
	}()
	return cb()
}
