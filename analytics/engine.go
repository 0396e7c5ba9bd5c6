// Package analytics evaluates every acquired value against its tag's
// threshold alarms and online outlier model, maintains the per-tag live
// state, and reports alarm transitions.
//
// The engine itself is stateless; all per-tag state (latest value, current
// alarm state, baseline accumulator) lives on the TagConfig so it shares the
// tag's lifetime and survives acquisition restarts but not reconfiguration.
package analytics

import (
	"log/slog"
	"time"

	"github.com/Martenstenden/Data-Logger-sub001/metric"
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

// Transition describes a change of a tag's current alarm state. Transitions
// are only produced when the state actually changes; a tag that stays in
// High does not repeat the notification on every sample.
type Transition struct {
	Connection string           `json:"connection"`
	Tag        string           `json:"tag"`
	From       types.AlarmState `json:"from"`
	To         types.AlarmState `json:"to"`
	Value      any              `json:"value"`
	Message    string           `json:"message,omitempty"`
	At         time.Time        `json:"at"`
}

// Engine classifies acquired values for one connection.
type Engine struct {
	connection string
	logger     *slog.Logger
	metrics    *metric.Metrics // nil disables metrics
}

// NewEngine creates an analytics engine for a connection. registry may be nil.
func NewEngine(connection string, logger *slog.Logger, registry *metric.MetricsRegistry) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	var m *metric.Metrics
	if registry != nil {
		m = registry.CoreMetrics()
	}
	return &Engine{
		connection: connection,
		logger:     logger.With("component", "analytics", "connection", connection),
		metrics:    m,
	}
}

// Evaluate classifies one sample for its tag, updates the tag's live state
// and baseline, and returns the classified value plus a transition when the
// tag's current alarm state changed.
//
// Precedence: bad quality or a value that fails numeric conversion is always
// Error and resets the baseline. Otherwise the threshold result applies,
// overridden by Outlier when outlier detection is enabled and fires.
func (e *Engine) Evaluate(tag *types.TagConfig, v types.AcquiredValue) (types.AcquiredValue, *Transition) {
	state := types.AlarmNormal

	value, numeric := v.Float()
	switch {
	case v.Quality == types.QualityBad:
		state = types.AlarmError
		e.resetBaseline(tag, "bad_quality")
	case !numeric:
		state = types.AlarmError
		if v.Error == "" {
			v.Error = "value is not numeric"
		}
		e.resetBaseline(tag, "not_numeric")
	default:
		state, _ = EvaluateThreshold(value, tag.Limits)
		if tag.Outlier.Enabled {
			if observeBaseline(tag, value) {
				state = types.AlarmOutlier
				if e.metrics != nil {
					e.metrics.OutliersTotal.WithLabelValues(e.connection).Inc()
				}
			}
		} else if tag.BaselineSnapshot().Count > 0 {
			// Detection switched off; a stale baseline must not linger.
			e.resetBaseline(tag, "disabled")
		}
	}

	v.State = state
	if state.IsActive() {
		v.Message = tag.RenderAlarmMessage(state, v.Raw)
	}

	return v, e.commit(tag, v)
}

// commit writes the live fields and detects a state transition.
func (e *Engine) commit(tag *types.TagConfig, v types.AcquiredValue) *Transition {
	prev := tag.Live()

	live := types.LiveStatus{
		Raw:        v.Raw,
		Quality:    v.Quality,
		Timestamp:  v.Timestamp,
		State:      v.State,
		StateSince: prev.StateSince,
	}

	changed := prev.State != v.State
	if changed {
		switch v.State {
		case types.AlarmNormal, types.AlarmError:
			live.StateSince = time.Time{}
		default:
			live.StateSince = time.Now()
		}
	}
	tag.SetLive(live)

	if !changed {
		return nil
	}

	t := &Transition{
		Connection: e.connection,
		Tag:        tag.Name,
		From:       prev.State,
		To:         v.State,
		Value:      v.Raw,
		Message:    v.Message,
		At:         time.Now(),
	}

	e.logger.Info("alarm state changed",
		"tag", tag.Name,
		"from", t.From.String(),
		"to", t.To.String(),
		"value", v.Raw)
	if e.metrics != nil {
		e.metrics.AlarmTransitions.WithLabelValues(e.connection, v.State.String()).Inc()
	}
	return t
}

func (e *Engine) resetBaseline(tag *types.TagConfig, reason string) {
	var had bool
	tag.UpdateBaseline(func(b *types.BaselineState) {
		had = b.Count > 0
		b.Reset()
	})
	if had {
		e.logger.Debug("baseline reset", "tag", tag.Name, "reason", reason)
		if e.metrics != nil {
			e.metrics.BaselineResets.WithLabelValues(e.connection, reason).Inc()
		}
	}
}
