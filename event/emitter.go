package event

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Martenstenden/Data-Logger-sub001/analytics"
	"github.com/Martenstenden/Data-Logger-sub001/component"
	"github.com/Martenstenden/Data-Logger-sub001/metric"
	"github.com/Martenstenden/Data-Logger-sub001/pkg/worker"
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

// envelope is one delivery: an event bound to one sink.
type envelope struct {
	sink   Sink
	kind   string
	status *StatusEvent
	batch  *ValueBatch
	alarm  *analytics.Transition
}

// Emitter fans events out to the registered sinks through a worker pool.
type Emitter struct {
	sinks   []Sink
	pool    *worker.Pool[envelope]
	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewEmitter creates an emitter delivering to the given sinks.
func NewEmitter(deps component.Dependencies, sinks ...Sink) (*Emitter, error) {
	e := &Emitter{
		sinks:  sinks,
		logger: deps.GetLoggerWithComponent("emitter"),
	}
	if deps.MetricsRegistry != nil {
		e.metrics = deps.MetricsRegistry.CoreMetrics()
	}

	pool, err := worker.NewPool(2, 1024, e.deliver)
	if err != nil {
		return nil, err
	}
	e.pool = pool
	return e, nil
}

// Start launches the delivery workers.
func (e *Emitter) Start(ctx context.Context) {
	e.pool.Start(ctx)
}

// Stop drains pending deliveries.
func (e *Emitter) Stop(timeout time.Duration) error {
	return e.pool.Stop(timeout)
}

func (e *Emitter) deliver(ctx context.Context, env envelope) error {
	var err error
	switch env.kind {
	case "status":
		err = env.sink.PublishStatus(ctx, *env.status)
	case "values":
		err = env.sink.PublishValues(ctx, *env.batch)
	case "alarm":
		err = env.sink.PublishAlarm(ctx, *env.alarm)
	}
	if err != nil {
		e.logger.Warn("sink delivery failed", "sink", env.sink.Name(), "kind", env.kind, "error", err)
		if e.metrics != nil {
			e.metrics.SinkErrors.WithLabelValues(env.sink.Name()).Inc()
		}
		return err
	}
	if e.metrics != nil {
		e.metrics.EventsPublished.WithLabelValues(env.sink.Name(), env.kind).Inc()
	}
	return nil
}

func (e *Emitter) submit(env envelope) {
	if err := e.pool.Submit(env); err != nil {
		e.logger.Warn("event dropped", "sink", env.sink.Name(), "kind", env.kind, "error", err)
	}
}

// EmitStatus publishes a connection-status-changed event to every sink.
func (e *Emitter) EmitStatus(ev StatusEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	for _, s := range e.sinks {
		e.submit(envelope{sink: s, kind: "status", status: &ev})
	}
}

// EmitValues publishes one batch of classified values.
func (e *Emitter) EmitValues(connection string, values []types.AcquiredValue) {
	if len(values) == 0 {
		return
	}
	batch := ValueBatch{
		ID:         uuid.NewString(),
		Connection: connection,
		Values:     values,
		At:         time.Now(),
	}
	for _, s := range e.sinks {
		e.submit(envelope{sink: s, kind: "values", batch: &batch})
	}
}

// EmitAlarm publishes an alarm transition.
func (e *Emitter) EmitAlarm(t analytics.Transition) {
	for _, s := range e.sinks {
		e.submit(envelope{sink: s, kind: "alarm", alarm: &t})
	}
}
