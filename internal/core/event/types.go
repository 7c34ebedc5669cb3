package event

import (
	"time"

	"github.com/bruce-go/scripthost/internal/core/slot"
)

// ReleaseReason records which path freed a resource slot.
type ReleaseReason string

const (
	ReleaseClose     ReleaseReason = "close"
	ReleaseFinalizer ReleaseReason = "finalizer"
	ReleaseTeardown  ReleaseReason = "teardown"
)

type ResourceAllocated struct {
	Kind   string
	Handle slot.Handle
}

type ResourceReleased struct {
	Kind   string
	Handle slot.Handle
	Reason ReleaseReason
}

type TimerFired struct {
	ID   uint64
	Late time.Duration // how far past its deadline the callback ran
}

type CallbackFailed struct {
	ID  uint64
	Err error
}
