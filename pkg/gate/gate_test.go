package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateMutualExclusion(t *testing.T) {
	g := New("plc1")
	ctx := context.Background()

	var inside atomic.Int32
	var overlap atomic.Bool
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(ctx, 5*time.Second)
			require.NoError(t, err)
			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load(), "two holders were inside the gate at once")
}

func TestGateAcquireTimesOut(t *testing.T) {
	g := New("plc1")
	release, err := g.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer release()

	start := time.Now()
	_, err = g.Acquire(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second, "waiter must give up at its own budget")
}

func TestGateAcquireHonorsContext(t *testing.T) {
	g := New("plc1")
	release, err := g.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = g.Acquire(ctx, 10*time.Second)
	assert.Error(t, err)
}

func TestGateReleaseIsIdempotent(t *testing.T) {
	g := New("plc1")
	release, err := g.Acquire(context.Background(), time.Second)
	require.NoError(t, err)

	release()
	release()

	release2, err := g.Acquire(context.Background(), time.Second)
	require.NoError(t, err, "double release must not corrupt the slot")
	release2()
}

func TestGateTryAcquire(t *testing.T) {
	g := New("plc1")

	release, ok := g.TryAcquire()
	require.True(t, ok)

	_, ok = g.TryAcquire()
	assert.False(t, ok)

	release()
	release2, ok := g.TryAcquire()
	assert.True(t, ok)
	release2()
}
