package acquire

import (
	"context"

	"github.com/Martenstenden/Data-Logger-sub001/errors"
	"github.com/Martenstenden/Data-Logger-sub001/transport"
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

// startPushLocked creates the server-side subscription. Requires e.mu and
// the gate; the previous subscription is already gone (stopLocked ran).
func (e *Engine) startPushLocked(ctx context.Context, sub transport.Subscriber, active []*types.TagConfig) error {
	params := transport.SubscriptionParams{
		Interval: publishingInterval(active),
		Tags:     active,
		Handler:  e.handleNotification,
	}

	subscription, err := sub.Subscribe(ctx, params)
	if err != nil {
		return errors.WrapTransient(err, "acquire", "startPush", "create subscription")
	}
	e.sub = subscription

	registered := subscription.Registered()
	if e.metrics != nil {
		e.metrics.MonitoredItems.WithLabelValues(e.connection).Set(float64(len(registered)))
	}

	// Rejected items are marked Error on their tag; the rest of the
	// subscription stays up.
	for name, itemErr := range subscription.Failed() {
		e.logger.Warn("monitored item rejected", "tag", name, "error", itemErr)
		e.markErrorLocked(name, itemErr)
	}

	// Immediate one-shot read of the registered items so observers see a
	// value before the first change notification arrives.
	if len(registered) > 0 {
		values, readErr := e.sess.Read(ctx, registered)
		if readErr != nil {
			e.logger.Warn("initial read after subscribe failed", "error", readErr)
		} else {
			classified := e.processWith(e.cfg, values, ModePush)
			e.emitter.EmitValues(e.connection, classified)
		}
	}

	return nil
}

// handleNotification receives one change notification from the transport's
// delivery goroutine. It runs outside the connection gate: it only touches
// per-tag state, never the session, so a stuck foreground operation cannot
// block incoming data.
func (e *Engine) handleNotification(v types.AcquiredValue) {
	classified := e.process([]types.AcquiredValue{v}, ModePush)
	e.emitter.EmitValues(e.connection, classified)
}
