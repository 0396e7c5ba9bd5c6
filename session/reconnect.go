package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Martenstenden/Data-Logger-sub001/pkg/retry"
)

// Reconnect handler states. The handler performs at most one reconnect
// attempt sequence at a time; repeated liveness failures while an attempt is
// running are coalesced into it.
const (
	reconnectReady int32 = iota
	reconnectInProgress
)

// reconnectHandler owns the background re-establishment of a lost session.
// It exists so overlapping liveness failures cannot spawn overlapping
// reconnect loops, and so Disconnect can cancel a loop that is mid-backoff.
type reconnectHandler struct {
	state   atomic.Int32
	cfg     retry.Config
	attempt func(ctx context.Context) error
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newReconnectHandler(attempt func(ctx context.Context) error, logger *slog.Logger) *reconnectHandler {
	return &reconnectHandler{
		cfg:     retry.Reconnect(),
		attempt: attempt,
		logger:  logger,
	}
}

// Trigger starts the reconnect loop unless one is already running. The loop
// retries with backoff (2s initial, 30s ceiling) until the attempt succeeds
// or Cancel fires.
func (h *reconnectHandler) Trigger(ctx context.Context) {
	if !h.state.CompareAndSwap(reconnectReady, reconnectInProgress) {
		h.logger.Debug("reconnect already in progress")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			h.cancel = nil
			h.mu.Unlock()
			cancel()
			h.state.Store(reconnectReady)
		}()

		err := retry.Do(loopCtx, h.cfg, func() error {
			return h.attempt(loopCtx)
		})
		if err != nil {
			h.logger.Warn("reconnect abandoned", "error", err)
			return
		}
		h.logger.Info("reconnect succeeded")
	}()
}

// Cancel aborts an in-flight reconnect loop, including one sleeping in
// backoff. No-op when the handler is idle.
func (h *reconnectHandler) Cancel() {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// InProgress reports whether a reconnect loop is currently running.
func (h *reconnectHandler) InProgress() bool {
	return h.state.Load() == reconnectInProgress
}
