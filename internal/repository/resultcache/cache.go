// Package resultcache stores assembled search results in a key-value store
// with a TTL. Cache failures are never fatal: a broken cache degrades to
// recomputation, logged at warn level.
package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/docqa-labs/retriever/internal/db"
	"github.com/docqa-labs/retriever/internal/domain"
)

// store is the consumer interface for the result cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo caches search results in a key-value store.
type Repo struct {
	store      store
	prefix     string
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a result cache repository. cacheTotal is a counter vec with
// label "result" ("hit"/"miss"), passed explicitly; nil disables counting.
func New(s store, prefix string, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Repo {
	return &Repo{
		store:      s,
		prefix:     prefix,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Get returns a cached result, or (nil, false) on miss or any cache error.
// Entries are immutable once written; the returned copy is the caller's.
func (r *Repo) Get(ctx context.Context, key string) (*domain.Result, bool) {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			r.logger.Warn("Failed to get cached result", zap.String("key", key), zap.Error(err))
		}
		r.incCache("miss")
		return nil, false
	}

	var res domain.Result
	if err := json.Unmarshal(data, &res); err != nil {
		r.logger.Warn("Failed to parse cached result", zap.String("key", key), zap.Error(err))
		r.incCache("miss")
		return nil, false
	}

	r.incCache("hit")
	return &res, true
}

// Put stores a result under key with the given TTL. Errors are logged, not
// returned: a failed write only costs a recomputation later.
func (r *Repo) Put(ctx context.Context, key string, res *domain.Result, ttl time.Duration) {
	data, err := json.Marshal(res)
	if err != nil {
		r.logger.Warn("Failed to marshal result for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := r.store.SetWithTTL(ctx, key, data, ttl); err != nil {
		r.logger.Warn("Failed to cache result", zap.String("key", key), zap.Error(err))
	}
}

// EvictAll removes every cached search result under this repo's prefix.
func (r *Repo) EvictAll(ctx context.Context) error {
	keys, err := r.store.Scan(ctx, r.prefix+"search:*")
	if err != nil {
		return fmt.Errorf("scan cached results: %w", err)
	}

	var evicted int
	for _, key := range keys {
		if err := r.store.Del(ctx, key); err != nil {
			r.logger.Warn("Failed to evict cached result", zap.String("key", key), zap.Error(err))
			continue
		}
		evicted++
	}

	r.logger.Info("Result cache evicted", zap.Int("entries", evicted))
	return nil
}

func (r *Repo) incCache(result string) {
	if r.cacheTotal != nil {
		r.cacheTotal.WithLabelValues(result).Inc()
	}
}
