package system

import (
	"context"
	"fmt"
	"slices"
)

// PhaseError reports which phase stopped a pass.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string { return fmt.Sprintf("%s phase: %v", e.Phase, e.Err) }

func (e *PhaseError) Unwrap() error { return e.Err }

// Runner executes registered systems in phase order. Systems sharing a phase
// keep their registration order.
type Runner struct {
	systems []System
	dirty   bool
}

func NewRunner() *Runner {
	return &Runner{}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.dirty = true
}

// Run updates every system once. The first failure ends the pass and is
// returned as a *PhaseError; later phases do not run.
func (r *Runner) Run(ctx context.Context) error {
	return r.run(ctx, func(Phase) bool { return true })
}

// RunPhase updates only the systems of one phase.
func (r *Runner) RunPhase(ctx context.Context, phase Phase) error {
	return r.run(ctx, func(p Phase) bool { return p == phase })
}

func (r *Runner) run(ctx context.Context, include func(Phase) bool) error {
	if r.dirty {
		slices.SortStableFunc(r.systems, func(a, b System) int { return int(a.Phase()) - int(b.Phase()) })
		r.dirty = false
	}
	for _, s := range r.systems {
		p := s.Phase()
		if !include(p) {
			continue
		}
		if err := s.Update(ctx); err != nil {
			return &PhaseError{Phase: p, Err: err}
		}
	}
	return nil
}
