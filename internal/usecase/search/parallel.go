package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/docqa-labs/retriever/internal/domain"
	"github.com/docqa-labs/retriever/internal/metrics"
	"github.com/docqa-labs/retriever/internal/retry"
)

// joinGrace pads the caller-side join deadline past the branch context
// deadline, so a cooperative index call gets to observe its own timeout
// before the join gives up on the branch.
const joinGrace = 100 * time.Millisecond

// BranchOutcome is the joined result of one retrieval branch. A branch that
// timed out or failed resolves to an empty outcome with zero duration.
type BranchOutcome struct {
	Matches    []domain.Match
	DurationMs int64
}

func emptyOutcome() BranchOutcome {
	return BranchOutcome{Matches: []domain.Match{}}
}

// ParallelRetriever dispatches the text and image lookups concurrently onto
// a shared worker pool and joins both. One branch failing never fails the
// other or the overall call.
type ParallelRetriever struct {
	pool   Dispatcher
	text   Index
	image  Index
	cfg    Config
	logger *zap.Logger
}

// NewParallelRetriever creates a retriever over the two indexes.
func NewParallelRetriever(pool Dispatcher, text, image Index, cfg Config, logger *zap.Logger) *ParallelRetriever {
	return &ParallelRetriever{
		pool:   pool,
		text:   text,
		image:  image,
		cfg:    cfg,
		logger: logger,
	}
}

// Retrieve runs both branch lookups concurrently, each bounded by its own
// timeout, and blocks until both have resolved. Since the branches start
// together, the overall wait is bounded by one branch timeout, not the sum.
func (r *ParallelRetriever) Retrieve(ctx context.Context, vector []float32, k int) (text, image BranchOutcome) {
	textCh := r.dispatch(ctx, r.text, vector, k)
	imageCh := r.dispatch(ctx, r.image, vector, k)
	return <-textCh, <-imageCh
}

// dispatch submits one branch to the pool and returns a channel guaranteed
// to deliver exactly one outcome within the branch timeout plus grace. The
// branch context carries the timeout into the index call, so a timed-out
// lookup is cancelled, not merely ignored.
func (r *ParallelRetriever) dispatch(ctx context.Context, idx Index, vector []float32, k int) <-chan BranchOutcome {
	taskOut := make(chan BranchOutcome, 1)
	joined := make(chan BranchOutcome, 1)

	branchCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)

	go func() {
		err := r.pool.Submit(branchCtx, func() {
			taskOut <- r.runBranch(branchCtx, idx, vector, k)
		})
		if err != nil {
			r.logger.Warn("Branch dispatch failed",
				zap.String("branch", idx.Name()),
				zap.Error(err),
			)
			metrics.SearchBranchFailures.WithLabelValues(idx.Name(), "error").Inc()
			taskOut <- emptyOutcome()
		}
	}()

	go func() {
		defer cancel()

		timer := time.NewTimer(r.cfg.Timeout + joinGrace)
		defer timer.Stop()

		select {
		case out := <-taskOut:
			joined <- out
		case <-timer.C:
			// The task goroutine may still be running against an index that
			// ignores cancellation; its result is discarded when it lands.
			r.logger.Warn("Branch timed out, resolving empty",
				zap.String("branch", idx.Name()),
				zap.Duration("timeout", r.cfg.Timeout),
			)
			metrics.SearchBranchFailures.WithLabelValues(idx.Name(), "timeout").Inc()
			joined <- emptyOutcome()
		}
	}()

	return joined
}

// runBranch executes one index lookup under the retry policy. Exhausted
// retries and timeouts both degrade to an empty outcome; a panic inside
// the index collaborator does too.
func (r *ParallelRetriever) runBranch(ctx context.Context, idx Index, vector []float32, k int) (out BranchOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Branch panicked, resolving empty",
				zap.String("branch", idx.Name()),
				zap.Any("panic", rec),
			)
			metrics.SearchBranchFailures.WithLabelValues(idx.Name(), "error").Inc()
			out = emptyOutcome()
		}
	}()

	start := time.Now()

	exec := retry.New(r.cfg.MaxRetries, r.cfg.BaseRetryDelay,
		retry.WithOnRetry(func(attempt int, err error) {
			metrics.RetryAttemptsTotal.WithLabelValues(idx.Name()).Inc()
			r.logger.Debug("Retrying index lookup",
				zap.String("branch", idx.Name()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}),
	)

	var matches []domain.Match
	err := exec.Do(ctx, func(ctx context.Context) error {
		found, err := idx.FindRelevant(ctx, vector, k, r.cfg.MinScore)
		if err != nil {
			return err
		}
		matches = found
		return nil
	})
	if err != nil {
		reason := "error"
		if ctx.Err() != nil {
			reason = "timeout"
		}
		r.logger.Warn("Branch lookup failed, resolving empty",
			zap.String("branch", idx.Name()),
			zap.String("reason", reason),
			zap.Error(err),
		)
		metrics.SearchBranchFailures.WithLabelValues(idx.Name(), reason).Inc()
		return emptyOutcome()
	}

	duration := time.Since(start)
	metrics.SearchBranchDuration.WithLabelValues(idx.Name()).Observe(duration.Seconds())
	metrics.SearchBranchResults.WithLabelValues(idx.Name()).Add(float64(len(matches)))

	if matches == nil {
		matches = []domain.Match{}
	}
	return BranchOutcome{Matches: matches, DurationMs: duration.Milliseconds()}
}
