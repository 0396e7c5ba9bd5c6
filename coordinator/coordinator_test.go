package coordinator

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
	"github.com/Martenstenden/Data-Logger-sub001/session"
	"github.com/Martenstenden/Data-Logger-sub001/transport/transporttest"
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

func baseConfig() *types.ConnectionConfig {
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
			{
				Name:             "temp",
				Register:         101,
				RegisterKind:     types.RegisterHolding,
				SamplingInterval: time.Second,
				Active:           true,
			},
		},
	}
}

func newCoordinator(t *testing.T) (*Coordinator, *session.Manager, *transporttest.Backend) {
	t.Helper()
	cfg := baseConfig()
	backend := transporttest.NewBackend(types.ProtocolModbus)
	g := gate.New(cfg.Name)
	an := analytics.NewEngine(cfg.Name, nil, nil)
	em, err := event.NewEmitter(component.Dependencies{})
	require.NoError(t, err)
	acq := acquire.NewEngine(cfg.Name, g, an, em, component.Dependencies{})
	mgr, err := session.NewManager(cfg, backend, g, acq, em, component.Dependencies{})
	require.NoError(t, err)
	coord, err := New(mgr, component.Dependencies{})
	require.NoError(t, err)
	return coord, mgr, backend
}

func TestApplyRejectsNilAndInvalid(t *testing.T) {
	coord, _, _ := newCoordinator(t)
	ctx := context.Background()

	_, err := coord.Apply(ctx, nil)
	assert.True(t, errors.IsInvalid(err))

	bad := baseConfig()
	bad.Tags = append(bad.Tags, &types.TagConfig{Name: "pressure", Register: 1, RegisterKind: types.RegisterHolding})
	_, err = coord.Apply(ctx, bad)
	assert.True(t, errors.IsInvalid(err))
}

func TestApplyStoresWhenDisconnected(t *testing.T) {
	coord, mgr, backend := newCoordinator(t)

	next := baseConfig()
	next.Endpoint = "10.0.0.9:502"
	action, err := coord.Apply(context.Background(), next)
	require.NoError(t, err)

	assert.Equal(t, ActionStored, action)
	assert.Equal(t, 0, backend.Connects(), "no network action while disconnected")
	assert.Equal(t, "10.0.0.9:502", mgr.ConfigSnapshot().Endpoint)
}

func TestApplyEndpointChangeReconnects(t *testing.T) {
	coord, mgr, backend := newCoordinator(t)
	ctx := context.Background()
	require.NoError(t, mgr.Connect(ctx))
	first := backend.LastSession()

	next := baseConfig()
	next.Endpoint = "10.0.0.9:502"
	action, err := coord.Apply(ctx, next)
	require.NoError(t, err)

	assert.Equal(t, ActionReconnected, action)
	assert.True(t, first.Closed(), "the old session is torn down")
	assert.Equal(t, 2, backend.Connects())
	assert.True(t, mgr.IsConnected())
	assert.Equal(t, "10.0.0.9:502", mgr.ConfigSnapshot().Endpoint)

	require.NoError(t, mgr.Disconnect(ctx))
}

func TestApplySamplingChangeRestartsAcquisitionOnly(t *testing.T) {
	coord, mgr, backend := newCoordinator(t)
	ctx := context.Background()
	require.NoError(t, mgr.Connect(ctx))

	next := baseConfig()
	tag, _ := next.TagByName("pressure")
	tag.SamplingInterval = 5 * time.Second
	action, err := coord.Apply(ctx, next)
	require.NoError(t, err)

	assert.Equal(t, ActionRestartedAcquisition, action)
	assert.Equal(t, 1, backend.Connects(), "the session is reused")
	assert.False(t, backend.LastSession().Closed())

	require.NoError(t, mgr.Disconnect(ctx))
}

func TestApplyActiveSetChangeRestartsAcquisition(t *testing.T) {
	coord, mgr, backend := newCoordinator(t)
	ctx := context.Background()
	require.NoError(t, mgr.Connect(ctx))

	next := baseConfig()
	tag, _ := next.TagByName("temp")
	tag.Active = false
	action, err := coord.Apply(ctx, next)
	require.NoError(t, err)

	assert.Equal(t, ActionRestartedAcquisition, action)
	assert.Equal(t, 1, backend.Connects())

	require.NoError(t, mgr.Disconnect(ctx))
}

func TestApplyScanIntervalChangeRestartsAcquisition(t *testing.T) {
	coord, mgr, _ := newCoordinator(t)
	ctx := context.Background()
	require.NoError(t, mgr.Connect(ctx))

	next := baseConfig()
	next.ScanInterval = 30 * time.Minute
	action, err := coord.Apply(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, ActionRestartedAcquisition, action)

	require.NoError(t, mgr.Disconnect(ctx))
}

func TestApplyLimitOnlyChangeNeedsNoNetworkAction(t *testing.T) {
	coord, mgr, backend := newCoordinator(t)
	ctx := context.Background()
	require.NoError(t, mgr.Connect(ctx))

	live, ok := mgr.CurrentConfig().TagByName("pressure")
	require.True(t, ok)

	next := baseConfig()
	newHigh := 60.0
	tag, _ := next.TagByName("pressure")
	tag.Limits.High = &newHigh

	reads := backend.LastSession().Reads()
	action, err := coord.Apply(ctx, next)
	require.NoError(t, err)

	assert.Equal(t, ActionApplied, action)
	assert.Equal(t, 1, backend.Connects(), "no reconnect")
	assert.Equal(t, reads, backend.LastSession().Reads(), "no resubscribe or sweep")
	assert.Equal(t, 60.0, *live.Limits.High, "the running tag sees the new limit")

	require.NoError(t, mgr.Disconnect(ctx))
}

func TestApplyIsImmuneToCallerMutation(t *testing.T) {
	coord, mgr, _ := newCoordinator(t)

	next := baseConfig()
	_, err := coord.Apply(context.Background(), next)
	require.NoError(t, err)

	next.Endpoint = "mutated:502"
	assert.Equal(t, "10.0.0.5:502", mgr.ConfigSnapshot().Endpoint)
}
