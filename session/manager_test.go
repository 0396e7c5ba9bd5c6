package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Martenstenden/Data-Logger-sub001/acquire"
	"github.com/Martenstenden/Data-Logger-sub001/analytics"
	"github.com/Martenstenden/Data-Logger-sub001/component"
	"github.com/Martenstenden/Data-Logger-sub001/errors"
	"github.com/Martenstenden/Data-Logger-sub001/event"
	"github.com/Martenstenden/Data-Logger-sub001/pkg/gate"
	"github.com/Martenstenden/Data-Logger-sub001/transport/transporttest"
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

func managerConfig() *types.ConnectionConfig {
	high := 80.0
	return &types.ConnectionConfig{
		Name:         "plc1",
		Protocol:     types.ProtocolModbus,
		Endpoint:     "10.0.0.5:502",
		UnitID:       1,
		Enabled:      true,
		ScanInterval: time.Hour,
		Tags: []*types.TagConfig{
			{
				Name:             "pressure",
				Register:         100,
				RegisterKind:     types.RegisterHolding,
				SamplingInterval: time.Second,
				Active:           true,
				Limits:           types.AlarmLimits{Enabled: true, High: &high},
			},
		},
	}
}

func newTestManager(t *testing.T, backend *transporttest.Backend) *Manager {
	t.Helper()
	return newTestManagerWith(t, backend, managerConfig())
}

func newTestManagerWith(t *testing.T, backend *transporttest.Backend, cfg *types.ConnectionConfig) *Manager {
	t.Helper()
	g := gate.New(cfg.Name)
	an := analytics.NewEngine(cfg.Name, nil, nil)
	em, err := event.NewEmitter(component.Dependencies{})
	require.NoError(t, err)
	acq := acquire.NewEngine(cfg.Name, g, an, em, component.Dependencies{})

	m, err := NewManager(cfg, backend, g, acq, em, component.Dependencies{})
	require.NoError(t, err)
	return m
}

func TestNewManagerRejectsNilConfig(t *testing.T) {
	backend := transporttest.NewBackend(types.ProtocolModbus)
	_, err := NewManager(nil, backend, gate.New("x"), nil, nil, component.Dependencies{})
	assert.True(t, errors.IsInvalid(err))
}

func TestConnectIsIdempotent(t *testing.T) {
	backend := transporttest.NewBackend(types.ProtocolModbus)
	m := newTestManager(t, backend)
	ctx := context.Background()

	require.NoError(t, m.Connect(ctx))
	require.NoError(t, m.Connect(ctx))
	require.NoError(t, m.Connect(ctx))

	assert.Equal(t, 1, backend.Connects(), "repeated Connect must not dial again")
	assert.True(t, m.IsConnected())
	assert.Equal(t, StatusConnected, m.Status())

	require.NoError(t, m.Disconnect(ctx))
}

func TestConnectFailureIsTransient(t *testing.T) {
	backend := transporttest.NewBackend(types.ProtocolModbus)
	backend.FailConnect(assert.AnError)
	m := newTestManager(t, backend)

	err := m.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.False(t, m.IsConnected())
	assert.Equal(t, StatusDisconnected, m.Status())

	// The endpoint comes back; a plain retry succeeds.
	backend.FailConnect(nil)
	require.NoError(t, m.Connect(context.Background()))
	assert.True(t, m.IsConnected())

	require.NoError(t, m.Disconnect(context.Background()))
}

func TestDisconnectClosesSessionAndStopsAcquisition(t *testing.T) {
	backend := transporttest.NewBackend(types.ProtocolModbus)
	m := newTestManager(t, backend)
	ctx := context.Background()

	require.NoError(t, m.Connect(ctx))
	sess := backend.LastSession()
	require.NotNil(t, sess)

	require.NoError(t, m.Disconnect(ctx))
	assert.True(t, sess.Closed())
	assert.False(t, m.IsConnected())

	// Idempotent.
	require.NoError(t, m.Disconnect(ctx))
}

func TestLivenessLossTriggersReconnect(t *testing.T) {
	backend := transporttest.NewBackend(types.ProtocolModbus)
	m := newTestManager(t, backend)
	ctx := context.Background()

	require.NoError(t, m.Connect(ctx))
	first := backend.LastSession()

	first.LoseLiveness(assert.AnError)

	require.Eventually(t, func() bool {
		return backend.Connects() == 2 && m.IsConnected()
	}, 5*time.Second, 10*time.Millisecond, "a lost session must be re-established")

	assert.True(t, first.Closed(), "the dead session is disposed")
	assert.Equal(t, StatusConnected, m.Status())

	require.NoError(t, m.Disconnect(ctx))
}

func TestPollSweepsContinueAfterReconnect(t *testing.T) {
	backend := transporttest.NewBackend(types.ProtocolModbus)
	cfg := managerConfig()
	cfg.ScanInterval = 20 * time.Millisecond
	m := newTestManagerWith(t, backend, cfg)
	ctx := context.Background()

	require.NoError(t, m.Connect(ctx))
	first := backend.LastSession()
	first.SetValue("pressure", 50.0)
	require.Eventually(t, func() bool { return first.Reads() > 0 },
		5*time.Second, 5*time.Millisecond, "poll loop sweeps the first session")

	first.LoseLiveness(assert.AnError)
	require.Eventually(t, func() bool {
		return backend.Connects() == 2 && m.IsConnected()
	}, 5*time.Second, 10*time.Millisecond)

	second := backend.LastSession()
	require.NotSame(t, first, second)
	second.SetValue("pressure", 51.0)
	baseline := second.Reads()
	require.Eventually(t, func() bool { return second.Reads() > baseline },
		5*time.Second, 5*time.Millisecond, "poll loop keeps sweeping the new session")

	require.NoError(t, m.Disconnect(ctx))
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	backend := transporttest.NewBackend(types.ProtocolModbus)
	m := newTestManager(t, backend)
	ctx := context.Background()

	require.NoError(t, m.Connect(ctx))
	first := backend.LastSession()

	// The endpoint stays down, so the reconnect loop keeps backing off.
	backend.FailConnect(assert.AnError)
	first.LoseLiveness(assert.AnError)

	require.Eventually(t, func() bool {
		return m.Status() == StatusReconnecting
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, m.Disconnect(ctx))
	assert.Equal(t, StatusDisconnected, m.Status())

	// No further dial attempts once disconnected.
	dials := backend.Connects()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, dials, backend.Connects())
}

func TestReplaceConfigValidates(t *testing.T) {
	backend := transporttest.NewBackend(types.ProtocolModbus)
	m := newTestManager(t, backend)

	assert.True(t, errors.IsInvalid(m.ReplaceConfig(nil)))

	bad := managerConfig()
	bad.Protocol = "s7"
	assert.True(t, errors.IsInvalid(m.ReplaceConfig(bad)))

	good := managerConfig()
	good.Endpoint = "10.0.0.9:502"
	require.NoError(t, m.ReplaceConfig(good))
	assert.Equal(t, "10.0.0.9:502", m.ConfigSnapshot().Endpoint)
}

func TestApplyTagSettingsUpdatesLiveTags(t *testing.T) {
	backend := transporttest.NewBackend(types.ProtocolModbus)
	m := newTestManager(t, backend)
	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))

	live, ok := m.CurrentConfig().TagByName("pressure")
	require.True(t, ok)
	live.UpdateBaseline(func(b *types.BaselineState) { b.Update(10) })

	next := managerConfig()
	newHigh := 60.0
	tag, _ := next.TagByName("pressure")
	tag.Limits.High = &newHigh
	tag.AlarmMessage = "pressure {state}"

	require.NoError(t, m.ApplyTagSettings(next))

	assert.Equal(t, 60.0, *live.Limits.High, "limits apply to the running tag instance")
	assert.Equal(t, "pressure {state}", live.AlarmMessage)
	assert.Equal(t, 1, live.BaselineSnapshot().Count, "unchanged outlier settings keep the baseline")

	// Changing outlier settings discards the accumulated baseline.
	next2 := managerConfig()
	tag2, _ := next2.TagByName("pressure")
	tag2.Outlier = types.OutlierConfig{Enabled: true, BaselineSamples: 5, Factor: 3}
	require.NoError(t, m.ApplyTagSettings(next2))
	assert.Zero(t, live.BaselineSnapshot().Count)

	require.NoError(t, m.Disconnect(ctx))
}

func TestHealthReflectsConnection(t *testing.T) {
	backend := transporttest.NewBackend(types.ProtocolModbus)
	m := newTestManager(t, backend)
	ctx := context.Background()

	h := m.Health()
	assert.False(t, h.Healthy)

	require.NoError(t, m.Connect(ctx))
	h = m.Health()
	assert.True(t, h.Healthy)

	require.NoError(t, m.Disconnect(ctx))
}
