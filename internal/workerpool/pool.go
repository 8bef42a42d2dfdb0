// Package workerpool provides a fixed-capacity pool shared by all concurrent
// searches. Capacity is enforced with a weighted semaphore; tasks run on
// their own goroutines once a slot is acquired.
package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Submit after Shutdown has started.
var ErrClosed = errors.New("worker pool closed")

// Task is a unit of work dispatched onto the pool.
type Task func()

// Pool bounds the number of concurrently running tasks.
type Pool struct {
	sem     *semaphore.Weighted
	size    int
	wg      sync.WaitGroup
	running atomic.Int64
	closed  atomic.Bool
	logger  *zap.Logger
}

// New creates a pool with the given capacity. Values below 1 become 1.
func New(size int, logger *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		size:   size,
		logger: logger,
	}
}

// Size returns the pool capacity.
func (p *Pool) Size() int { return p.size }

// Running returns the number of currently executing tasks.
func (p *Pool) Running() int { return int(p.running.Load()) }

// Submit blocks until a slot is free, then runs task asynchronously.
// Returns ErrClosed after shutdown, or the context error if ctx is done
// before a slot frees up.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err //nolint:wrapcheck // context error, callers match on it directly
	}
	if p.closed.Load() {
		p.sem.Release(1)
		return ErrClosed
	}

	p.wg.Add(1)
	p.running.Add(1)
	go func() {
		defer func() {
			p.running.Add(-1)
			p.sem.Release(1)
			p.wg.Done()
		}()
		task()
	}()
	return nil
}

// Shutdown rejects new tasks and waits up to grace for running tasks to
// drain. Tasks still running when the grace period elapses are abandoned
// (their goroutines keep running, their results are discarded) and counted.
func (p *Pool) Shutdown(grace time.Duration) int {
	p.closed.Store(true)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool drained")
		return 0
	case <-time.After(grace):
		abandoned := int(p.running.Load())
		p.logger.Warn("worker pool drain timed out",
			zap.Duration("grace", grace),
			zap.Int("abandoned_tasks", abandoned),
		)
		return abandoned
	}
}
