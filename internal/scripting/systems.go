package scripting

import (
	"context"

	"github.com/bruce-go/scripthost/internal/bridge"
	"github.com/bruce-go/scripthost/internal/core/event"
	"github.com/bruce-go/scripthost/internal/core/system"
	"github.com/bruce-go/scripthost/internal/timer"
)

// collectSystem releases slots whose wrappers the garbage collector reclaimed.
type collectSystem struct {
	bridge *bridge.Bridge
}

func (s *collectSystem) Phase() system.Phase { return system.PhaseCollect }

func (s *collectSystem) Update(context.Context) error {
	s.bridge.Collect()
	return nil
}

// drainSystem runs deferred callbacks until none are armed.
type drainSystem struct {
	timers *timer.Scheduler
}

func (s *drainSystem) Phase() system.Phase { return system.PhaseDrain }

func (s *drainSystem) Update(ctx context.Context) error {
	return s.timers.Drain(ctx)
}

type dispatchSystem struct {
	bus *event.Bus
}

func (s *dispatchSystem) Phase() system.Phase { return system.PhaseDispatch }

func (s *dispatchSystem) Update(context.Context) error {
	s.bus.Flush()
	return nil
}
