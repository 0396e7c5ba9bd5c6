// Package gate provides the single-slot mutual-exclusion gate that serializes
// all network operations on one connection: connect, disconnect, subscription
// setup and poll sweeps. At most one such operation is in flight at a time;
// other callers wait up to a bounded timeout and fail softly when it elapses.
//
// The gate is deliberately not a sync.Mutex: waiters need a timeout and
// context cancellation, and a failed acquire must leave no state behind.
package gate

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned when the gate could not be acquired within the
// caller's wait budget. The operation was not started; it is safe to retry.
var ErrTimeout = errors.New("gate: acquire timed out")

// Gate is a 1-slot semaphore with bounded-wait acquire.
type Gate struct {
	name string
	slot chan struct{}
}

// New creates a gate. The name appears in errors for diagnostics.
func New(name string) *Gate {
	return &Gate{
		name: name,
		slot: make(chan struct{}, 1),
	}
}

// Name returns the gate's diagnostic name.
func (g *Gate) Name() string {
	return g.name
}

// Acquire takes the slot, waiting up to wait. It returns a release function
// on success. On timeout or context cancellation it returns an error and the
// caller must not proceed with the guarded operation. Extra calls of the
// release function are no-ops.
func (g *Gate) Acquire(ctx context.Context, wait time.Duration) (func(), error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case g.slot <- struct{}{}:
		return g.releaser(), nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire takes the slot without waiting. Used by opportunistic callers
// (e.g. a poll tick that should skip rather than queue behind a reconnect).
func (g *Gate) TryAcquire() (func(), bool) {
	select {
	case g.slot <- struct{}{}:
		return g.releaser(), true
	default:
		return nil, false
	}
}

func (g *Gate) releaser() func() {
	var once sync.Once
	return func() {
		once.Do(func() { <-g.slot })
	}
}
