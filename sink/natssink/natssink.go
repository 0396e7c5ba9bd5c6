// Package natssink publishes emitted events to NATS subjects for downstream
// consumers (logging, UI, plotting):
//
//	datalogger.values.<connection>  — classified value batches
//	datalogger.status.<connection>  — connection status changes
//	datalogger.alarms.<connection>  — alarm transitions
package natssink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Martenstenden/Data-Logger-sub001/analytics"
	"github.com/Martenstenden/Data-Logger-sub001/errors"
	"github.com/Martenstenden/Data-Logger-sub001/event"
	"github.com/Martenstenden/Data-Logger-sub001/natsclient"
)

// SubjectPrefix is the root of all subjects this sink publishes on.
const SubjectPrefix = "datalogger"

// Sink publishes events to NATS as JSON.
type Sink struct {
	client *natsclient.Client
}

// New creates a NATS sink over an existing client connection.
func New(client *natsclient.Client) (*Sink, error) {
	if client == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil NATS client"),
			"natssink", "New", "client validation")
	}
	return &Sink{client: client}, nil
}

// Name implements event.Sink.
func (s *Sink) Name() string { return "nats" }

// PublishStatus implements event.Sink.
func (s *Sink) PublishStatus(_ context.Context, ev event.StatusEvent) error {
	return s.publish(fmt.Sprintf("%s.status.%s", SubjectPrefix, ev.Connection), ev)
}

// PublishValues implements event.Sink.
func (s *Sink) PublishValues(_ context.Context, batch event.ValueBatch) error {
	return s.publish(fmt.Sprintf("%s.values.%s", SubjectPrefix, batch.Connection), batch)
}

// PublishAlarm implements event.Sink.
func (s *Sink) PublishAlarm(_ context.Context, t analytics.Transition) error {
	return s.publish(fmt.Sprintf("%s.alarms.%s", SubjectPrefix, t.Connection), t)
}

func (s *Sink) publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.WrapInvalid(err, "natssink", "publish", "marshal payload")
	}
	return s.client.Publish(subject, data)
}
