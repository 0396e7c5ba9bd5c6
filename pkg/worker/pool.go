// Package worker provides a small generic worker pool. The event emitter
// uses it to hand classified batches to sinks without letting a slow sink
// block the acquisition path.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNilProcessor is returned by NewPool when no processor is supplied.
var ErrNilProcessor = errors.New("worker: nil processor")

// ErrNotStarted is returned by Submit before Start was called.
var ErrNotStarted = errors.New("worker: pool not started")

// ErrQueueFull is returned by Submit when the work queue is saturated.
var ErrQueueFull = errors.New("worker: queue full")

// Pool processes work items of type T on a fixed set of goroutines.
type Pool[T any] struct {
	workers   int
	processor func(context.Context, T) error
	workChan  chan T

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewPool creates a pool with the given worker count and queue size.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error) (*Pool[T], error) {
	if processor == nil {
		return nil, ErrNilProcessor
	}
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Pool[T]{
		workers:   workers,
		processor: processor,
		workChan:  make(chan T, queueSize),
	}, nil
}

// Start launches the worker goroutines. Idempotent.
func (p *Pool[T]) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
}

func (p *Pool[T]) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.workChan:
			if !ok {
				return
			}
			if err := p.processor(ctx, item); err != nil {
				p.failed.Add(1)
			} else {
				p.processed.Add(1)
			}
		}
	}
}

// Submit enqueues a work item without blocking. Items are dropped with
// ErrQueueFull when the queue is saturated; the caller decides whether that
// matters.
func (p *Pool[T]) Submit(item T) error {
	p.mu.Lock()
	started, stopped := p.started, p.stopped
	p.mu.Unlock()
	if !started || stopped {
		return ErrNotStarted
	}

	select {
	case p.workChan <- item:
		p.submitted.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		return ErrQueueFull
	}
}

// Stop drains the queue and waits for workers to finish, up to timeout.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.workChan)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		p.cancel()
		<-done
	}
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// Stats reports pool counters: submitted, processed, failed, dropped.
func (p *Pool[T]) Stats() (submitted, processed, failed, dropped int64) {
	return p.submitted.Load(), p.processed.Load(), p.failed.Load(), p.dropped.Load()
}
