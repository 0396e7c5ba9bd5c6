// Package acquire drives data flow once a session exists. Subscription-capable
// backends get a server-side subscription over the active tag set (push
// mode); request/response-only backends get a scheduled read sweep of all
// active tags (poll mode). Every acquired value passes through the analytics
// engine before it is emitted.
package acquire

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Martenstenden/Data-Logger-sub001/analytics"
	"github.com/Martenstenden/Data-Logger-sub001/component"
	"github.com/Martenstenden/Data-Logger-sub001/errors"
	"github.com/Martenstenden/Data-Logger-sub001/event"
	"github.com/Martenstenden/Data-Logger-sub001/metric"
	"github.com/Martenstenden/Data-Logger-sub001/pkg/gate"
	"github.com/Martenstenden/Data-Logger-sub001/transport"
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

const (
	// minPublishingInterval clamps the subscription publishing interval
	// derived from per-tag sampling rates.
	minPublishingInterval = 100 * time.Millisecond

	// startStopGateWait bounds how long start/stop waits for the gate.
	startStopGateWait = 10 * time.Second

	// sweepGateWait bounds how long a poll tick waits for the gate. A tick
	// that cannot get the slot skips rather than queueing behind a
	// reconnect.
	sweepGateWait = 2 * time.Second

	// sweepTimeout bounds one full sweep over all active tags.
	sweepTimeout = 10 * time.Second
)

// Mode names the active acquisition strategy.
type Mode string

// Acquisition modes.
const (
	ModeNone Mode = "none"
	ModePush Mode = "push"
	ModePoll Mode = "poll"
)

// Engine runs one acquisition strategy for one connection at a time. The
// single-strategy invariant is what makes the per-tag state single-writer:
// values for a tag only ever arrive from one path.
type Engine struct {
	connection string
	gate       *gate.Gate
	analytics  *analytics.Engine
	emitter    *event.Emitter
	logger     *slog.Logger
	metrics    *metric.Metrics

	mu       sync.Mutex
	running  bool
	mode     Mode
	sess     transport.Session
	cfg      *types.ConnectionConfig
	sub      transport.Subscription
	pollStop context.CancelFunc
	pollDone chan struct{}
}

// NewEngine creates an acquisition engine for one connection. The gate must
// be the same instance the session manager serializes on.
func NewEngine(connection string, g *gate.Gate, an *analytics.Engine, em *event.Emitter, deps component.Dependencies) *Engine {
	e := &Engine{
		connection: connection,
		gate:       g,
		analytics:  an,
		emitter:    em,
		logger:     deps.GetLoggerWithComponent("acquire").With("connection", connection),
	}
	if deps.MetricsRegistry != nil {
		e.metrics = deps.MetricsRegistry.CoreMetrics()
	}
	return e
}

// Mode returns the currently active acquisition strategy.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return ModeNone
	}
	return e.mode
}

// Start begins acquisition against the given session. Any previous
// subscription or poll loop is torn down first. The strategy is chosen by
// backend capability: sessions implementing transport.Subscriber get push
// mode, everything else polls on the connection's scan interval.
func (e *Engine) Start(ctx context.Context, sess transport.Session, cfg *types.ConnectionConfig) error {
	if sess == nil || cfg == nil {
		return errors.WrapInvalid(errors.ErrNilConfig, "acquire", "Start", "argument validation")
	}

	release, err := e.gate.Acquire(ctx, startStopGateWait)
	if err != nil {
		e.countGateTimeout("start")
		return errors.WrapTransient(errors.ErrGateTimeout, "acquire", "Start", "gate acquire")
	}
	defer release()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Previous acquisition, if any, goes first. Safe when nothing runs.
	e.stopLocked(ctx)

	e.sess = sess
	e.cfg = cfg

	active := cfg.ActiveTags()
	if len(active) == 0 {
		e.logger.Warn("no active tags, acquisition idle")
		e.running = true
		e.mode = ModeNone
		return nil
	}

	if sub, ok := sess.(transport.Subscriber); ok {
		if err := e.startPushLocked(ctx, sub, active); err != nil {
			return err
		}
		e.mode = ModePush
	} else {
		e.startPollLocked(cfg.ScanInterval)
		e.mode = ModePoll
	}

	e.running = true
	e.logger.Info("acquisition started", "mode", string(e.mode), "tags", len(active))
	return nil
}

// Stop tears acquisition down: monitored items, then the subscription, or
// the poll loop. Safe to call when nothing is running.
func (e *Engine) Stop(ctx context.Context) error {
	release, err := e.gate.Acquire(ctx, startStopGateWait)
	if err != nil {
		e.countGateTimeout("stop")
		return errors.WrapTransient(errors.ErrGateTimeout, "acquire", "Stop", "gate acquire")
	}
	defer release()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked(ctx)
	return nil
}

// stopLocked requires e.mu and the gate.
func (e *Engine) stopLocked(ctx context.Context) {
	if e.sub != nil {
		if err := e.sub.Cancel(ctx); err != nil {
			// Best effort; the session may already be gone.
			e.logger.Warn("subscription teardown failed", "error", err)
		}
		e.sub = nil
		if e.metrics != nil {
			e.metrics.MonitoredItems.WithLabelValues(e.connection).Set(0)
		}
	}
	if e.pollStop != nil {
		e.pollStop()
		<-e.pollDone
		e.pollStop = nil
		e.pollDone = nil
	}
	if e.running {
		e.logger.Info("acquisition stopped", "mode", string(e.mode))
	}
	e.running = false
	e.mode = ModeNone
}

// process classifies a slice of raw values and forwards alarm transitions.
// It returns the classified values for batch emission.
func (e *Engine) process(values []types.AcquiredValue, mode Mode) []types.AcquiredValue {
	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()
	return e.processWith(cfg, values, mode)
}

// processWith is the lock-free worker behind process, used directly by
// callers that already hold e.mu. Values for unknown tags are dropped; that
// only happens when a notification races a reconfiguration that removed the
// tag.
func (e *Engine) processWith(cfg *types.ConnectionConfig, values []types.AcquiredValue, mode Mode) []types.AcquiredValue {
	if cfg == nil {
		return nil
	}

	out := make([]types.AcquiredValue, 0, len(values))
	for _, v := range values {
		tag, ok := cfg.TagByName(v.Tag)
		if !ok {
			continue
		}
		classified, transition := e.analytics.Evaluate(tag, v)
		out = append(out, classified)
		if transition != nil {
			e.emitter.EmitAlarm(*transition)
		}
		if e.metrics != nil {
			if classified.Quality == types.QualityBad {
				e.metrics.TagReadErrors.WithLabelValues(e.connection, v.Tag).Inc()
			}
			e.metrics.ValuesReceived.WithLabelValues(e.connection, string(mode)).Inc()
		}
	}
	return out
}

// markErrorLocked pushes a synthetic bad-quality sample through the
// analytics path so a tag that failed registration shows Error without
// aborting the rest. Requires e.mu.
func (e *Engine) markErrorLocked(tag string, err error) {
	classified := e.processWith(e.cfg, []types.AcquiredValue{types.ErrorValue(tag, err)}, ModePush)
	e.emitter.EmitValues(e.connection, classified)
}

func (e *Engine) countGateTimeout(op string) {
	if e.metrics != nil {
		e.metrics.GateTimeouts.WithLabelValues(e.connection, op).Inc()
	}
}

// publishingInterval derives the subscription publishing interval from the
// fastest requested sampling interval among the active tags.
func publishingInterval(tags []*types.TagConfig) time.Duration {
	interval := time.Duration(0)
	for _, t := range tags {
		if t.SamplingInterval > 0 && (interval == 0 || t.SamplingInterval < interval) {
			interval = t.SamplingInterval
		}
	}
	if interval < minPublishingInterval {
		interval = minPublishingInterval
	}
	return interval
}
