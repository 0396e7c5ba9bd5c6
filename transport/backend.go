// Package transport defines the narrow interface between the session and
// acquisition layers and the protocol stacks underneath them. One adapter
// exists per backend (OPC UA, Modbus TCP); everything above this package is
// vendor-agnostic and tested against a scriptable fake.
package transport

import (
	"context"
	"time"

	"github.com/Martenstenden/Data-Logger-sub001/types"
)

// Backend creates sessions against one kind of endpoint.
type Backend interface {
	// Protocol identifies the backend.
	Protocol() types.Protocol

	// Connect establishes a session. On failure no resources remain open.
	Connect(ctx context.Context, cfg *types.ConnectionConfig) (Session, error)
}

// Session is a live, stateful connection to one endpoint or device.
//
// Sessions are owned by the session manager and all methods except value
// delivery run under the connection gate. A session is single-use: once
// Close returns, the manager dials a fresh one.
type Session interface {
	// Read sweeps the current values of the given tags. A failure on one
	// tag yields a bad-quality value for that tag only; a non-nil error
	// means the session itself is unusable.
	Read(ctx context.Context, tags []*types.TagConfig) ([]types.AcquiredValue, error)

	// Liveness delivers an error when the transport's keep-alive signal
	// reports the session unhealthy. The channel is closed on Close.
	Liveness() <-chan error

	// Close tears the session down. Idempotent.
	Close(ctx context.Context) error
}

// Subscriber is implemented by sessions whose backend supports server-side
// push. The acquisition engine type-asserts on it to choose between push and
// poll acquisition.
type Subscriber interface {
	Subscribe(ctx context.Context, params SubscriptionParams) (Subscription, error)
}

// SubscriptionParams configures a server-side subscription.
type SubscriptionParams struct {
	// Interval is the publishing interval, already clamped by the caller.
	Interval time.Duration
	// Tags are the active tags to monitor, one item per tag.
	Tags []*types.TagConfig
	// Handler receives each change notification. It is called from the
	// transport's delivery goroutine, outside the connection gate, and
	// must not block.
	Handler func(types.AcquiredValue)
}

// Subscription is a live server-side subscription with its monitored items.
type Subscription interface {
	// Registered returns the tags whose monitored items were accepted.
	Registered() []*types.TagConfig
	// Failed maps tag names to their registration error. Failed items do
	// not abort the subscription; the engine marks them Error instead.
	Failed() map[string]error
	// Cancel deletes the subscription server-side and detaches handlers.
	// Idempotent.
	Cancel(ctx context.Context) error
}
