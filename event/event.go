// Package event carries the notifications the core emits to the outside
// world: connection status changes, batches of classified values, and alarm
// transitions. Delivery to sinks runs on a worker pool so a slow sink never
// blocks acquisition or reconnection.
package event

import (
	"context"
	"time"

	"github.com/Martenstenden/Data-Logger-sub001/analytics"
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

// StatusEvent reports a connection going up or down.
type StatusEvent struct {
	Connection string    `json:"connection"`
	Connected  bool      `json:"connected"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// ValueBatch carries classified values: one per batch for push
// notifications, one batch per sweep for poll mode.
type ValueBatch struct {
	ID         string                `json:"id"`
	Connection string                `json:"connection"`
	Values     []types.AcquiredValue `json:"values"`
	At         time.Time             `json:"at"`
}

// Sink consumes events. Implementations must be safe for concurrent use;
// they are invoked from the emitter's worker pool.
type Sink interface {
	Name() string
	PublishStatus(ctx context.Context, ev StatusEvent) error
	PublishValues(ctx context.Context, batch ValueBatch) error
	PublishAlarm(ctx context.Context, t analytics.Transition) error
}
