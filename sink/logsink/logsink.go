// Package logsink writes emitted events to the structured log. It is the
// always-on sink; NATS publication is layered on top when configured.
package logsink

import (
	"context"
	"log/slog"

	"github.com/Martenstenden/Data-Logger-sub001/analytics"
	"github.com/Martenstenden/Data-Logger-sub001/event"
)

// Sink logs events via slog.
type Sink struct {
	logger *slog.Logger
}

// New creates a logging sink.
func New(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logger: logger.With("component", "logsink")}
}

// Name implements event.Sink.
func (s *Sink) Name() string { return "log" }

// PublishStatus implements event.Sink.
func (s *Sink) PublishStatus(_ context.Context, ev event.StatusEvent) error {
	if ev.Connected {
		s.logger.Info("connection up", "connection", ev.Connection)
	} else {
		s.logger.Warn("connection down", "connection", ev.Connection, "reason", ev.Reason)
	}
	return nil
}

// PublishValues implements event.Sink. Batches are logged at debug level to
// keep steady-state output quiet; alarms carry the interesting signal.
func (s *Sink) PublishValues(_ context.Context, batch event.ValueBatch) error {
	s.logger.Debug("values",
		"connection", batch.Connection,
		"count", len(batch.Values),
		"batch_id", batch.ID)
	return nil
}

// PublishAlarm implements event.Sink.
func (s *Sink) PublishAlarm(_ context.Context, t analytics.Transition) error {
	s.logger.Warn("alarm transition",
		"connection", t.Connection,
		"tag", t.Tag,
		"from", t.From.String(),
		"to", t.To.String(),
		"value", t.Value,
		"message", t.Message)
	return nil
}
