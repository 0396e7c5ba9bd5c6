package opcuabackend

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/Martenstenden/Data-Logger-sub001/errors"
	"github.com/Martenstenden/Data-Logger-sub001/transport"
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

// notifyBuffer sizes the publish notification channel. The dispatch
// goroutine drains it continuously; the buffer only absorbs bursts.
const notifyBuffer = 64

// Subscribe implements transport.Subscriber. Monitored items are created in
// one batch; items the server rejects are reported through Failed and do not
// abort the subscription.
func (s *session) Subscribe(ctx context.Context, params transport.SubscriptionParams) (transport.Subscription, error) {
	notifyCh := make(chan *opcua.PublishNotificationData, notifyBuffer)

	uaSub, err := s.client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval: params.Interval,
	}, notifyCh)
	if err != nil {
		return nil, errors.WrapTransient(err, "opcua", "Subscribe", "create subscription")
	}

	sub := &subscription{
		uaSub:    uaSub,
		logger:   s.logger,
		handler:  params.Handler,
		byHandle: make(map[uint32]*types.TagConfig, len(params.Tags)),
		failed:   make(map[string]error),
		stop:     make(chan struct{}),
	}

	// Client handles index into byHandle; they only need to be unique
	// within this subscription.
	var requests []*ua.MonitoredItemCreateRequest
	var requested []*types.TagConfig
	handle := uint32(0)
	for _, t := range params.Tags {
		id, parseErr := ua.ParseNodeID(t.NodeID)
		if parseErr != nil {
			sub.failed[t.Name] = errors.WrapInvalid(parseErr, "opcua", "Subscribe", "parse node id")
			continue
		}
		handle++
		requests = append(requests, monitoredItemRequest(t, id, handle, params.Interval))
		requested = append(requested, t)
		sub.byHandle[handle] = t
	}

	if len(requests) > 0 {
		resp, monErr := uaSub.Monitor(ctx, ua.TimestampsToReturnBoth, requests...)
		if monErr != nil {
			_ = uaSub.Cancel(ctx)
			return nil, errors.WrapTransient(monErr, "opcua", "Subscribe", "create monitored items")
		}
		for i, result := range resp.Results {
			t := requested[i]
			if result.StatusCode&ua.StatusBad == ua.StatusBad {
				sub.failed[t.Name] = errors.WrapInvalid(errors.ErrItemRejected, "opcua", "Subscribe", result.StatusCode.Error())
				delete(sub.byHandle, requests[i].RequestedParameters.ClientHandle)
				continue
			}
			sub.registered = append(sub.registered, t)
		}
	}

	go sub.dispatch(notifyCh)
	return sub, nil
}

// monitoredItemRequest builds the create request for one tag. Queue depth 1
// with discard-oldest: only the newest sample per publish cycle matters. The
// sampling interval falls back to the subscription's publishing interval
// when the tag does not set one.
func monitoredItemRequest(t *types.TagConfig, id *ua.NodeID, handle uint32, fallback time.Duration) *ua.MonitoredItemCreateRequest {
	sampling := t.SamplingInterval
	if sampling <= 0 {
		sampling = fallback
	}
	return &ua.MonitoredItemCreateRequest{
		ItemToMonitor: &ua.ReadValueID{
			NodeID:       id,
			AttributeID:  ua.AttributeIDValue,
			DataEncoding: &ua.QualifiedName{},
		},
		MonitoringMode: ua.MonitoringModeReporting,
		RequestedParameters: &ua.MonitoringParameters{
			ClientHandle:     handle,
			SamplingInterval: float64(sampling.Milliseconds()),
			QueueSize:        1,
			DiscardOldest:    true,
		},
	}
}

// subscription is one live server-side subscription with its dispatcher.
type subscription struct {
	uaSub   *opcua.Subscription
	logger  *slog.Logger
	handler func(types.AcquiredValue)

	byHandle   map[uint32]*types.TagConfig
	registered []*types.TagConfig
	failed     map[string]error

	stop     chan struct{}
	stopOnce sync.Once
}

// Registered implements transport.Subscription.
func (s *subscription) Registered() []*types.TagConfig { return s.registered }

// Failed implements transport.Subscription.
func (s *subscription) Failed() map[string]error { return s.failed }

// Cancel implements transport.Subscription.
func (s *subscription) Cancel(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	if err := s.uaSub.Cancel(ctx); err != nil {
		return errors.WrapTransient(err, "opcua", "Cancel", "delete subscription")
	}
	return nil
}

// dispatch fans publish notifications out to the handler. It runs outside
// the connection gate and exits when the subscription is cancelled or the
// client closes the channel.
func (s *subscription) dispatch(notifyCh chan *opcua.PublishNotificationData) {
	for {
		select {
		case <-s.stop:
			return
		case msg, ok := <-notifyCh:
			if !ok {
				return
			}
			if msg.Error != nil {
				// Publish errors are transport-level; the session
				// heartbeat decides whether the session is dead.
				s.logger.Debug("publish notification error", "error", msg.Error)
				continue
			}
			s.deliver(msg)
		}
	}
}

func (s *subscription) deliver(msg *opcua.PublishNotificationData) {
	change, ok := msg.Value.(*ua.DataChangeNotification)
	if !ok {
		return
	}
	for _, item := range change.MonitoredItems {
		t, known := s.byHandle[item.ClientHandle]
		if !known {
			continue
		}
		s.handler(sampleFromDataValue(t.Name, item.Value))
	}
}
