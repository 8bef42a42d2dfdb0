// Package retry provides bounded retries with exponential backoff and jitter
// for transient index failures. Timing is injectable so tests run without
// real sleeps.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// DefaultJitterMax bounds the random offset added to each backoff delay,
// spreading out retry storms across callers.
const DefaultJitterMax = 200 * time.Millisecond

// SleepFunc suspends the caller for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Executor runs operations with bounded retries and exponential backoff.
type Executor struct {
	maxAttempts int
	baseDelay   time.Duration
	sleep       SleepFunc
	jitter      func() time.Duration
	onRetry     func(attempt int, err error)
}

// Option customizes an Executor.
type Option func(*Executor)

// WithSleep replaces the sleep implementation.
func WithSleep(sleep SleepFunc) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// WithJitter replaces the jitter source.
func WithJitter(jitter func() time.Duration) Option {
	return func(e *Executor) { e.jitter = jitter }
}

// WithOnRetry sets a hook invoked before each retry attempt (attempt >= 2).
func WithOnRetry(hook func(attempt int, err error)) Option {
	return func(e *Executor) { e.onRetry = hook }
}

// New creates an Executor. maxAttempts is the total attempt count including
// the first try; values below 1 are treated as 1.
func New(maxAttempts int, baseDelay time.Duration, opts ...Option) *Executor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	e := &Executor{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		sleep:       contextSleep,
		jitter:      func() time.Duration { return rand.N(DefaultJitterMax) },
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Do runs op, retrying on failure until maxAttempts is exhausted.
// The delay before attempt n (n >= 2) is baseDelay * 2^(n-2) plus jitter.
// Returns nil as soon as op succeeds, the last operation error after
// exhaustion, or the context error if cancelled while backing off.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := e.baseDelay<<(attempt-2) + e.jitter()
			if err := e.sleep(ctx, delay); err != nil {
				return fmt.Errorf("backoff interrupted: %w", err)
			}
			if e.onRetry != nil {
				e.onRetry(attempt, lastErr)
			}
		}

		if err := op(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("all %d attempts failed: %w", e.maxAttempts, lastErr)
}

// contextSleep waits for d, aborting early when ctx is done.
func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
