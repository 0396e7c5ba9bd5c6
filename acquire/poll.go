package acquire

import (
	"context"
	"time"

	"github.com/Martenstenden/Data-Logger-sub001/errors"
	"github.com/Martenstenden/Data-Logger-sub001/pkg/gate"
)

// defaultScanInterval applies when the connection does not configure one.
const defaultScanInterval = time.Second

// startPollLocked launches the poll loop. Requires e.mu and the gate.
//
// The loop runs on a lifetime the engine owns, ended only by stopLocked.
// Callers of Start include the reconnect handler, whose context ends as
// soon as its attempt succeeds; the loop must outlive that.
func (e *Engine) startPollLocked(interval time.Duration) {
	if interval <= 0 {
		interval = defaultScanInterval
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.pollStop = cancel
	e.pollDone = done

	go e.pollLoop(loopCtx, interval, done)
}

func (e *Engine) pollLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Sweep(ctx); err != nil {
				// Gate contention or a dead session; the next tick or
				// the reconnect handler picks it up.
				e.logger.Debug("sweep skipped", "error", err)
			}
		}
	}
}

// Sweep performs one read sweep over all active tags, classifies the
// results and emits them as a single batch. Each tag read is independently
// fault-tolerant: a failure on one tag yields an Error-quality value for
// that tag only and does not abort the sweep.
//
// Sweeps hold the connection gate. A sweep that cannot acquire the gate
// within its budget is skipped for this cycle, not queued.
func (e *Engine) Sweep(ctx context.Context) error {
	release, err := e.gate.Acquire(ctx, sweepGateWait)
	if err != nil {
		if err == gate.ErrTimeout {
			e.countGateTimeout("sweep")
		}
		return errors.WrapTransient(errors.ErrGateTimeout, "acquire", "Sweep", "gate acquire")
	}
	defer release()

	e.mu.Lock()
	sess := e.sess
	cfg := e.cfg
	e.mu.Unlock()

	if sess == nil || cfg == nil {
		return errors.WrapTransient(errors.ErrNotConnected, "acquire", "Sweep", "session check")
	}

	active := cfg.ActiveTags()
	if len(active) == 0 {
		return nil
	}

	start := time.Now()
	sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	values, err := sess.Read(sweepCtx, active)
	if err != nil {
		return errors.WrapTransient(err, "acquire", "Sweep", "read")
	}

	classified := e.processWith(cfg, values, ModePoll)
	e.emitter.EmitValues(e.connection, classified)

	if e.metrics != nil {
		e.metrics.SweepDuration.WithLabelValues(e.connection).Observe(time.Since(start).Seconds())
	}
	return nil
}
