// Package service assembles the per-connection pipelines (gate, analytics,
// acquisition, session manager, coordinator) into one supervised monitor
// component with a single lifecycle.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Martenstenden/Data-Logger-sub001/acquire"
	"github.com/Martenstenden/Data-Logger-sub001/analytics"
	"github.com/Martenstenden/Data-Logger-sub001/component"
	"github.com/Martenstenden/Data-Logger-sub001/config"
	"github.com/Martenstenden/Data-Logger-sub001/coordinator"
	"github.com/Martenstenden/Data-Logger-sub001/errors"
	"github.com/Martenstenden/Data-Logger-sub001/event"
	"github.com/Martenstenden/Data-Logger-sub001/pkg/gate"
	"github.com/Martenstenden/Data-Logger-sub001/pkg/retry"
	"github.com/Martenstenden/Data-Logger-sub001/session"
	"github.com/Martenstenden/Data-Logger-sub001/transport"
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

// connection is one assembled per-connection pipeline.
type connection struct {
	manager     *session.Manager
	coordinator *coordinator.Coordinator
}

// Monitor supervises every enabled connection. It implements
// component.LifecycleComponent; connections are built during Initialize,
// dialed during Start with background retry, and torn down by Stop.
type Monitor struct {
	cfg      *config.Config
	registry *transport.Registry
	emitter  *event.Emitter
	deps     component.Dependencies
	logger   *slog.Logger

	mu          sync.Mutex
	state       component.State
	connections map[string]*connection
	startTime   time.Time

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// NewMonitor creates the monitor. The emitter is shared by every pipeline
// and its lifecycle is owned here.
func NewMonitor(cfg *config.Config, registry *transport.Registry, emitter *event.Emitter, deps component.Dependencies) (*Monitor, error) {
	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrNilConfig, "service", "NewMonitor", "config validation")
	}
	if registry == nil || emitter == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("missing dependency"), "service", "NewMonitor", "dependency validation")
	}
	return &Monitor{
		cfg:         cfg.Clone(),
		registry:    registry,
		emitter:     emitter,
		deps:        deps,
		logger:      deps.GetLoggerWithComponent("monitor"),
		state:       component.StateCreated,
		connections: make(map[string]*connection),
	}, nil
}

// Initialize builds a pipeline for every enabled connection. No I/O happens
// here; an unbuildable connection (unknown protocol, invalid tags) fails the
// whole initialization since it is a configuration defect.
func (m *Monitor) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != component.StateCreated {
		return errors.WrapInvalid(fmt.Errorf("initialize in state %s", m.state), "service", "Initialize", "state check")
	}

	for _, cc := range m.cfg.EnabledConnections() {
		conn, err := m.build(cc)
		if err != nil {
			return err
		}
		m.connections[cc.Name] = conn
	}

	m.state = component.StateInitialized
	m.logger.Info("monitor initialized", "connections", len(m.connections))
	return nil
}

// build assembles one pipeline from a connection configuration.
func (m *Monitor) build(cc *types.ConnectionConfig) (*connection, error) {
	backend, err := m.registry.New(cc.Protocol, m.deps)
	if err != nil {
		return nil, errors.WrapInvalid(err, "service", "build", "resolve backend")
	}

	g := gate.New(cc.Name)
	an := analytics.NewEngine(cc.Name, m.deps.GetLogger(), m.deps.MetricsRegistry)
	acq := acquire.NewEngine(cc.Name, g, an, m.emitter, m.deps)

	mgr, err := session.NewManager(cc, backend, g, acq, m.emitter, m.deps)
	if err != nil {
		return nil, err
	}
	coord, err := coordinator.New(mgr, m.deps)
	if err != nil {
		return nil, err
	}
	return &connection{manager: mgr, coordinator: coord}, nil
}

// Start launches the emitter and dials every connection. Dialing happens in
// the background with backoff so one unreachable endpoint cannot stall the
// rest of the service.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != component.StateInitialized {
		m.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("start in state %s", m.state), "service", "Start", "state check")
	}
	m.runCtx, m.runCancel = context.WithCancel(ctx)
	m.state = component.StateStarted
	m.startTime = time.Now()
	conns := make(map[string]*connection, len(m.connections))
	for name, c := range m.connections {
		conns[name] = c
	}
	m.mu.Unlock()

	m.emitter.Start(m.runCtx)

	for name, c := range conns {
		m.wg.Add(1)
		go m.dial(name, c.manager)
	}

	m.logger.Info("monitor started", "connections", len(conns))
	return nil
}

// dial connects one session, retrying with backoff until it succeeds or the
// monitor stops. Once connected, the manager's own liveness watch and
// reconnect handler take over.
func (m *Monitor) dial(name string, mgr *session.Manager) {
	defer m.wg.Done()

	err := retry.Do(m.runCtx, retry.Reconnect(), func() error {
		return mgr.Connect(m.runCtx)
	})
	if err != nil {
		m.logger.Warn("initial connect abandoned", "connection", name, "error", err)
		return
	}
	m.logger.Info("connection up", "connection", name)
}

// Stop disconnects every connection and drains the emitter within the
// timeout. Connections are torn down in parallel, sharing the deadline.
func (m *Monitor) Stop(timeout time.Duration) error {
	m.mu.Lock()
	if m.state != component.StateStarted {
		m.mu.Unlock()
		return nil
	}
	m.state = component.StateStopped
	conns := make(map[string]*connection, len(m.connections))
	for name, c := range m.connections {
		conns[name] = c
	}
	cancel := m.runCancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	ctx, done := context.WithTimeout(context.Background(), timeout)
	defer done()

	var wg sync.WaitGroup
	for name, c := range conns {
		wg.Add(1)
		go func(name string, mgr *session.Manager) {
			defer wg.Done()
			if err := mgr.Disconnect(ctx); err != nil {
				m.logger.Warn("disconnect failed", "connection", name, "error", err)
			}
		}(name, c.manager)
	}
	wg.Wait()

	if err := m.emitter.Stop(timeout); err != nil {
		m.logger.Warn("emitter drain incomplete", "error", err)
	}

	m.logger.Info("monitor stopped")
	return nil
}

// ApplyConfig routes a new configuration to the running pipelines: existing
// connections go through their coordinator, new enabled connections are
// built and dialed, vanished or disabled ones are torn down.
func (m *Monitor) ApplyConfig(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrNilConfig, "service", "ApplyConfig", "config validation")
	}
	if err := cfg.Validate(); err != nil {
		return errors.WrapInvalid(err, "service", "ApplyConfig", "config validation")
	}

	m.mu.Lock()
	if m.state != component.StateStarted {
		m.cfg = cfg.Clone()
		m.mu.Unlock()
		return nil
	}
	m.cfg = cfg.Clone()
	current := make(map[string]*connection, len(m.connections))
	for name, c := range m.connections {
		current[name] = c
	}
	m.mu.Unlock()

	next := make(map[string]*types.ConnectionConfig)
	for _, cc := range cfg.EnabledConnections() {
		next[cc.Name] = cc
	}

	var firstErr error

	// Tear down connections that vanished or were disabled.
	for name, c := range current {
		if _, keep := next[name]; keep {
			continue
		}
		m.logger.Info("connection removed from configuration", "connection", name)
		if err := c.manager.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		m.mu.Lock()
		delete(m.connections, name)
		m.mu.Unlock()
	}

	for name, cc := range next {
		if c, ok := current[name]; ok {
			action, err := c.coordinator.Apply(ctx, cc)
			if err != nil {
				m.logger.Warn("reconfiguration failed", "connection", name, "error", err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			m.logger.Info("reconfiguration applied", "connection", name, "action", action.String())
			continue
		}

		c, err := m.build(cc)
		if err != nil {
			m.logger.Warn("new connection rejected", "connection", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		m.mu.Lock()
		m.connections[name] = c
		m.mu.Unlock()
		m.wg.Add(1)
		go m.dial(name, c.manager)
	}

	return firstErr
}

// Health implements component.HealthReporter: healthy only when every
// connection reports healthy.
func (m *Monitor) Health() component.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := component.HealthStatus{
		Healthy:   m.state == component.StateStarted,
		LastCheck: time.Now(),
		Uptime:    time.Since(m.startTime),
	}
	for name, c := range m.connections {
		h := c.manager.Health()
		if !h.Healthy {
			status.Healthy = false
			status.ErrorCount += h.ErrorCount
			status.LastError = fmt.Sprintf("connection %s: %s", name, h.LastError)
		}
	}
	return status
}

// ConnectionHealth returns per-connection health, keyed by connection name.
func (m *Monitor) ConnectionHealth() map[string]component.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]component.HealthStatus, len(m.connections))
	for name, c := range m.connections {
		out[name] = c.manager.Health()
	}
	return out
}

// Connection returns the session manager for one connection, for targeted
// operations (manual connect/disconnect).
func (m *Monitor) Connection(name string) (*session.Manager, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[name]
	if !ok {
		return nil, false
	}
	return c.manager, true
}
