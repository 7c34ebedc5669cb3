// Package system runs the fixed post-evaluation pass of the script host.
package system

import "context"

// Phase orders the steps of one host pass.
type Phase int

const (
	PhaseCollect  Phase = iota // release handles queued by finalizers
	PhaseDrain                 // run deferred callbacks to completion
	PhaseDispatch              // deliver lifecycle events
)

func (p Phase) String() string {
	switch p {
	case PhaseCollect:
		return "collect"
	case PhaseDrain:
		return "drain"
	case PhaseDispatch:
		return "dispatch"
	}
	return "unknown"
}

// System is one step of the pass.
type System interface {
	Phase() Phase
	Update(ctx context.Context) error
}
