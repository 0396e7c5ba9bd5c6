package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Martenstenden/Data-Logger-sub001/analytics"
	"github.com/Martenstenden/Data-Logger-sub001/component"
	"github.com/Martenstenden/Data-Logger-sub001/types"
)

// captureSink records everything it receives.
type captureSink struct {
	mu       sync.Mutex
	statuses []StatusEvent
	batches  []ValueBatch
	alarms   []analytics.Transition
	fail     error
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) PublishStatus(_ context.Context, ev StatusEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.statuses = append(c.statuses, ev)
	return nil
}

func (c *captureSink) PublishValues(_ context.Context, batch ValueBatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.batches = append(c.batches, batch)
	return nil
}

func (c *captureSink) PublishAlarm(_ context.Context, t analytics.Transition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.alarms = append(c.alarms, t)
	return nil
}

func (c *captureSink) snapshot() (int, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.statuses), len(c.batches), len(c.alarms)
}

func TestEmitterDeliversToAllSinks(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{}
	em, err := NewEmitter(component.Dependencies{}, a, b)
	require.NoError(t, err)
	em.Start(context.Background())

	em.EmitStatus(StatusEvent{Connection: "plc1", Connected: true})
	em.EmitValues("plc1", []types.AcquiredValue{{Tag: "pressure", Raw: 5.0}})
	em.EmitAlarm(analytics.Transition{Connection: "plc1", Tag: "pressure", To: types.AlarmHigh})

	require.NoError(t, em.Stop(time.Second))

	for _, sink := range []*captureSink{a, b} {
		statuses, batches, alarms := sink.snapshot()
		assert.Equal(t, 1, statuses)
		assert.Equal(t, 1, batches)
		assert.Equal(t, 1, alarms)
	}

	assert.NotEmpty(t, a.batches[0].ID, "batches carry a generated id")
	assert.False(t, a.statuses[0].At.IsZero(), "status timestamps are filled in")
}

func TestEmitterSkipsEmptyBatches(t *testing.T) {
	sink := &captureSink{}
	em, err := NewEmitter(component.Dependencies{}, sink)
	require.NoError(t, err)
	em.Start(context.Background())

	em.EmitValues("plc1", nil)
	require.NoError(t, em.Stop(time.Second))

	_, batches, _ := sink.snapshot()
	assert.Zero(t, batches)
}

func TestEmitterSinkFailureDoesNotAffectOthers(t *testing.T) {
	broken := &captureSink{fail: assert.AnError}
	healthy := &captureSink{}
	em, err := NewEmitter(component.Dependencies{}, broken, healthy)
	require.NoError(t, err)
	em.Start(context.Background())

	em.EmitStatus(StatusEvent{Connection: "plc1", Connected: false, Reason: "liveness lost"})
	require.NoError(t, em.Stop(time.Second))

	statuses, _, _ := healthy.snapshot()
	assert.Equal(t, 1, statuses)
}
