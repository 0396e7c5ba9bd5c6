// Package session owns the network session of one connection: establishing
// it, watching its liveness, re-establishing it with backoff after a loss,
// and tearing it down. All network operations are serialized through the
// connection's gate; value delivery runs outside it.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Martenstenden/Data-Logger-sub001/acquire"
	"github.com/Martenstenden/Data-Logger-sub001/component"
	"github.com/Martenstenden/Data-Logger-sub001/errors"
	"github.com/Martenstenden/Data-Logger-sub001/event"
	"github.com/Martenstenden/Data-Logger-sub001/metric"
	"github.com/Martenstenden/Data-Logger-sub001/pkg/gate"
	"github.com/Martenstenden/Data-Logger-sub001/transport"
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

// Status is the session lifecycle state.
type Status int

// Session states. Disconnect forces any state back to StatusDisconnected.
const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of the session status
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

const (
	connectGateWait    = 10 * time.Second
	disconnectGateWait = 5 * time.Second
	connectTimeout     = 10 * time.Second
	closeTimeout       = 5 * time.Second
)

// Manager owns the session of one connection.
type Manager struct {
	connection string
	backend    transport.Backend
	gate       *gate.Gate
	acq        *acquire.Engine
	emitter    *event.Emitter
	logger     *slog.Logger
	metrics    *metric.Metrics

	mu           sync.Mutex
	cfg          *types.ConnectionConfig
	sess         transport.Session
	livenessStop chan struct{}
	status       Status
	startTime    time.Time
	lastError    string
	errorCount   atomic.Int64
	connected    atomic.Bool

	reconnect *reconnectHandler

	// runCtx is the lifetime of background activity (liveness watch,
	// reconnect loops). Established on the first Connect, cancelled by
	// Disconnect.
	runCtx    context.Context
	runCancel context.CancelFunc
}

// NewManager creates a session manager. cfg is captured as a deep copy so
// later edits of the caller's instance cannot disturb a running session.
func NewManager(cfg *types.ConnectionConfig, backend transport.Backend, g *gate.Gate,
	acq *acquire.Engine, emitter *event.Emitter, deps component.Dependencies) (*Manager, error) {

	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrNilConfig, "session", "NewManager", "config validation")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "session", "NewManager", "config validation")
	}
	if backend == nil || g == nil || acq == nil || emitter == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("missing dependency"), "session", "NewManager", "dependency validation")
	}

	m := &Manager{
		connection: cfg.Name,
		backend:    backend,
		gate:       g,
		acq:        acq,
		emitter:    emitter,
		cfg:        cfg.Clone(),
		status:     StatusDisconnected,
		startTime:  time.Now(),
		logger:     deps.GetLoggerWithComponent("session").With("connection", cfg.Name),
	}
	if deps.MetricsRegistry != nil {
		m.metrics = deps.MetricsRegistry.CoreMetrics()
	}
	m.reconnect = newReconnectHandler(m.reconnectAttempt, m.logger)
	return m, nil
}

// IsConnected reports whether the session is currently up.
func (m *Manager) IsConnected() bool {
	return m.connected.Load()
}

// Status returns the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// ConfigSnapshot returns a deep copy of the configuration the manager is
// currently operating on.
func (m *Manager) ConfigSnapshot() *types.ConnectionConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Clone()
}

// CurrentConfig returns the live configuration instance. Callers must treat
// it as read-only; tag live state is accessed through its own accessors.
func (m *Manager) CurrentConfig() *types.ConnectionConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Connect establishes the session. Idempotent: a call while connected
// returns success without side effects. On any failure the transport is
// fully torn down; connected stays false and the caller may retry.
func (m *Manager) Connect(ctx context.Context) error {
	if m.connected.Load() {
		return nil
	}

	release, err := m.gate.Acquire(ctx, connectGateWait)
	if err != nil {
		m.countGateTimeout("connect")
		return errors.WrapTransient(errors.ErrGateTimeout, "session", "Connect", "gate acquire")
	}

	// Re-check under the gate: another caller may have connected while we
	// waited for the slot.
	if m.connected.Load() {
		release()
		return nil
	}

	m.mu.Lock()
	if m.runCtx == nil || m.runCtx.Err() != nil {
		m.runCtx, m.runCancel = context.WithCancel(context.Background())
	}
	m.status = StatusConnecting
	cfg := m.cfg
	m.mu.Unlock()
	m.setStatusMetric(StatusConnecting)

	start := time.Now()
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	sess, err := m.backend.Connect(dialCtx, cfg)
	cancel()
	if err != nil {
		m.mu.Lock()
		m.status = StatusDisconnected
		m.lastError = err.Error()
		m.mu.Unlock()
		m.errorCount.Add(1)
		m.setStatusMetric(StatusDisconnected)
		release()
		return errors.WrapTransient(err, "session", "Connect", "establish session")
	}

	m.adoptSession(sess)
	if m.metrics != nil {
		m.metrics.ConnectDuration.WithLabelValues(m.connection).Observe(time.Since(start).Seconds())
	}
	release()

	m.emitter.EmitStatus(event.StatusEvent{Connection: m.connection, Connected: true})
	m.logger.Info("session established", "endpoint", cfg.Endpoint)

	// Acquisition failure does not undo the session; it is a connectivity
	// error surfaced per tag and retried on the next reconfigure/reconnect.
	if err := m.acq.Start(ctx, sess, cfg); err != nil {
		m.errorCount.Add(1)
		m.logger.Error("acquisition start failed", "error", err)
	}
	return nil
}

// adoptSession swaps in a freshly dialled session: the previous liveness
// hook is detached and the new one attached before connected flips true.
func (m *Manager) adoptSession(sess transport.Session) {
	m.mu.Lock()
	if m.livenessStop != nil {
		close(m.livenessStop)
	}
	stop := make(chan struct{})
	m.livenessStop = stop
	m.sess = sess
	m.status = StatusConnected
	m.lastError = ""
	m.mu.Unlock()

	go m.watchLiveness(sess, stop)

	m.connected.Store(true)
	m.setStatusMetric(StatusConnected)
}

// Disconnect stops acquisition first, then tears the session down.
// Idempotent and safe to call when never connected. Any in-flight reconnect
// attempt is cancelled before teardown.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.reconnect.Cancel()

	if err := m.acq.Stop(ctx); err != nil {
		// Teardown continues; a stuck acquisition must not leak the session.
		m.logger.Warn("acquisition stop failed during disconnect", "error", err)
	}

	release, err := m.gate.Acquire(ctx, disconnectGateWait)
	if err != nil {
		m.countGateTimeout("disconnect")
		return errors.WrapTransient(errors.ErrGateTimeout, "session", "Disconnect", "gate acquire")
	}
	defer release()

	m.mu.Lock()
	sess := m.sess
	m.sess = nil
	if m.livenessStop != nil {
		close(m.livenessStop)
		m.livenessStop = nil
	}
	wasConnected := m.connected.Load()
	m.status = StatusDisconnected
	if m.runCancel != nil {
		m.runCancel()
	}
	m.mu.Unlock()

	m.connected.Store(false)
	m.setStatusMetric(StatusDisconnected)

	if sess != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			// Best effort: dispose failures are logged, never propagated.
			m.logger.Warn("session close failed", "error", err)
		}
	}

	if wasConnected {
		m.emitter.EmitStatus(event.StatusEvent{Connection: m.connection, Connected: false, Reason: "disconnect requested"})
		m.logger.Info("session closed")
	}
	return nil
}

// watchLiveness observes one session's keep-alive channel until the session
// is replaced or the manager disconnects.
func (m *Manager) watchLiveness(sess transport.Session, stop chan struct{}) {
	select {
	case <-stop:
		return
	case err, ok := <-sess.Liveness():
		if !ok {
			// Channel closed by an orderly Close.
			return
		}
		m.onLivenessLost(err)
	}
}

// onLivenessLost flips the manager into reconnecting state and hands the
// work to the reconnect handler. Repeated failures while a reconnect runs
// are absorbed by the handler's single-attempt guard.
func (m *Manager) onLivenessLost(cause error) {
	if !m.connected.CompareAndSwap(true, false) {
		return
	}

	m.errorCount.Add(1)
	m.mu.Lock()
	m.status = StatusReconnecting
	if cause != nil {
		m.lastError = cause.Error()
	}
	runCtx := m.runCtx
	m.mu.Unlock()
	m.setStatusMetric(StatusReconnecting)

	reason := "liveness lost"
	if cause != nil {
		reason = cause.Error()
	}
	m.logger.Warn("session liveness lost", "reason", reason)
	m.emitter.EmitStatus(event.StatusEvent{Connection: m.connection, Connected: false, Reason: reason})

	if runCtx == nil {
		return
	}
	m.reconnect.Trigger(runCtx)
}

// reconnectAttempt performs one re-establishment attempt. Called from the
// reconnect handler's backoff loop.
func (m *Manager) reconnectAttempt(ctx context.Context) error {
	release, err := m.gate.Acquire(ctx, connectGateWait)
	if err != nil {
		m.countGateTimeout("reconnect")
		return errors.ErrGateTimeout
	}

	m.mu.Lock()
	cfg := m.cfg
	old := m.sess
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	sess, err := m.backend.Connect(dialCtx, cfg)
	cancel()
	if err != nil {
		release()
		return err
	}

	// The new session replaces the old instance: detach the old liveness
	// hook, dispose the old transport, attach the new hook, then flip
	// connected.
	if old != nil && old != sess {
		closeCtx, cancelClose := context.WithTimeout(context.Background(), closeTimeout)
		_ = old.Close(closeCtx)
		cancelClose()
	}
	m.adoptSession(sess)
	release()

	if m.metrics != nil {
		m.metrics.ReconnectsTotal.WithLabelValues(m.connection).Inc()
	}
	m.emitter.EmitStatus(event.StatusEvent{Connection: m.connection, Connected: true, Reason: "reconnected"})
	m.logger.Info("session re-established")

	// Restart acquisition against the new session instance.
	if err := m.acq.Start(ctx, sess, cfg); err != nil {
		m.logger.Error("acquisition restart failed after reconnect", "error", err)
	}
	return nil
}

// RestartAcquisition stops and restarts acquisition against the current
// session without touching the session itself. Used when only the
// acquisition set (addresses, sampling intervals) changed.
func (m *Manager) RestartAcquisition(ctx context.Context) error {
	m.mu.Lock()
	sess := m.sess
	cfg := m.cfg
	m.mu.Unlock()

	if sess == nil || !m.connected.Load() {
		return errors.WrapTransient(errors.ErrNotConnected, "session", "RestartAcquisition", "session check")
	}
	if err := m.acq.Stop(ctx); err != nil {
		return err
	}
	return m.acq.Start(ctx, sess, cfg)
}

// ReplaceConfig installs a new configuration snapshot. The manager takes
// its own deep copy. Network actions (reconnect, resubscribe) are the
// coordinator's decision; this only swaps the stored configuration.
func (m *Manager) ReplaceConfig(cfg *types.ConnectionConfig) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrNilConfig, "session", "ReplaceConfig", "config validation")
	}
	if err := cfg.Validate(); err != nil {
		return errors.WrapInvalid(err, "session", "ReplaceConfig", "config validation")
	}
	m.mu.Lock()
	m.cfg = cfg.Clone()
	m.mu.Unlock()
	return nil
}

// ApplyTagSettings copies the evaluation settings (alarm limits, alarm
// message, outlier settings) from the matching tags of next onto the live
// tag instances, without any network action. The running acquisition keeps
// its tag pointers, so revised limits take effect on the next sample.
//
// A change of a tag's outlier settings resets its baseline: the accumulated
// statistics were gathered under the old settings.
func (m *Manager) ApplyTagSettings(next *types.ConnectionConfig) error {
	if next == nil {
		return errors.WrapInvalid(errors.ErrNilConfig, "session", "ApplyTagSettings", "config validation")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, current := range m.cfg.Tags {
		updated, ok := next.TagByName(current.Name)
		if !ok {
			continue
		}
		outlierChanged := current.Outlier != updated.Outlier

		current.Limits.Enabled = updated.Limits.Enabled
		current.Limits.HighHigh = cloneLimit(updated.Limits.HighHigh)
		current.Limits.High = cloneLimit(updated.Limits.High)
		current.Limits.Low = cloneLimit(updated.Limits.Low)
		current.Limits.LowLow = cloneLimit(updated.Limits.LowLow)
		current.AlarmMessage = updated.AlarmMessage
		current.Outlier = updated.Outlier

		if outlierChanged {
			current.UpdateBaseline(func(b *types.BaselineState) { b.Reset() })
		}
	}
	return nil
}

func cloneLimit(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Health implements component.HealthReporter.
func (m *Manager) Health() component.HealthStatus {
	m.mu.Lock()
	lastError := m.lastError
	m.mu.Unlock()

	return component.HealthStatus{
		Healthy:    m.connected.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(m.errorCount.Load()),
		LastError:  lastError,
		Uptime:     time.Since(m.startTime),
	}
}

func (m *Manager) setStatusMetric(s Status) {
	if m.metrics != nil {
		m.metrics.SessionStatus.WithLabelValues(m.connection).Set(float64(s))
	}
}

func (m *Manager) countGateTimeout(op string) {
	if m.metrics != nil {
		m.metrics.GateTimeouts.WithLabelValues(m.connection, op).Inc()
	}
}
