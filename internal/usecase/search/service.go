// Package search orchestrates multimodal retrieval: it normalizes the
// query, consults the result cache, embeds the query text, fans out to the
// text and image similarity indexes, aggregates both branches, and caches
// the assembled result.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/docqa-labs/retriever/internal/domain"
	"github.com/docqa-labs/retriever/internal/metrics"
	"github.com/docqa-labs/retriever/internal/repository/resultcache"
)

// Service handles multimodal document search.
type Service struct {
	retriever  Retriever
	embedder   Embedder
	cache      ResultCache
	cfg        Config
	keyPrefix  string
	cfgVersion string
	logger     *zap.Logger
}

// New creates a search service. cfgVersion fingerprints the result-affecting
// tunables and is baked into every cache key.
func New(
	retriever Retriever, embedder Embedder, cache ResultCache,
	cfg Config, keyPrefix, cfgVersion string, logger *zap.Logger,
) *Service {
	return &Service{
		retriever:  retriever,
		embedder:   embedder,
		cache:      cache,
		cfg:        cfg,
		keyPrefix:  keyPrefix,
		cfgVersion: cfgVersion,
		logger:     logger,
	}
}

// Search runs one multimodal search. An invalid query yields an
// error-valued result without touching the cache or the indexes; an
// embedding failure aborts the whole call; index failures and timeouts
// degrade to fewer results, never to an error.
func (s *Service) Search(ctx context.Context, rawQuery string, maxResults int, userID string) (*domain.Result, error) {
	start := time.Now()

	query, err := domain.NormalizeQuery(rawQuery, maxResults, userID, domain.QueryLimits{
		MaxQueryLength:    s.cfg.MaxQueryLength,
		DefaultMaxResults: s.cfg.DefaultMaxResults,
		MaxResults:        s.cfg.MaxResults,
	})
	if err != nil {
		s.logger.Debug("Rejected invalid query", zap.Error(err))
		metrics.SearchRequestsTotal.WithLabelValues("invalid").Inc()
		return domain.NewErrorResult(rawQuery, "invalid query"), nil
	}

	key := resultcache.BuildKey(
		s.keyPrefix, s.cfgVersion, query.Text, query.MaxResults, query.UserID, s.cfg.MinScore,
	)

	if cached, ok := s.cache.Get(ctx, key); ok {
		cached.WasCached = true
		metrics.SearchRequestsTotal.WithLabelValues("hit").Inc()
		s.logger.Debug("Search served from cache",
			zap.String("user_id", query.UserID),
			zap.Int("text_results", len(cached.TextResults)),
			zap.Int("image_results", len(cached.ImageResults)),
		)
		return cached, nil
	}

	embedding, err := s.embedder.Embed(ctx, query.Text)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("embed query: %w", err)
	}

	textOut, imageOut := s.retriever.Retrieve(ctx, embedding.Embedding, query.MaxResults)

	textResults, textMetrics := Aggregate(textOut, s.cfg.MinScore)
	imageResults, imageMetrics := Aggregate(imageOut, s.cfg.MinScore)

	result := &domain.Result{
		Query:           query.Text,
		TextResults:     textResults,
		ImageResults:    imageResults,
		TextMetrics:     textMetrics,
		ImageMetrics:    imageMetrics,
		TotalDurationMs: time.Since(start).Milliseconds(),
		WasCached:       false,
		Timestamp:       time.Now().UnixMilli(),
	}

	s.cache.Put(ctx, key, result, s.cfg.CacheTTL)
	metrics.SearchRequestsTotal.WithLabelValues("miss").Inc()

	s.logger.Info("Search completed",
		zap.String("user_id", query.UserID),
		zap.Int("text_results", textMetrics.ResultCount),
		zap.Float64("text_max_score", textMetrics.MaxScore),
		zap.Int64("text_duration_ms", textMetrics.DurationMs),
		zap.Int("image_results", imageMetrics.ResultCount),
		zap.Float64("image_max_score", imageMetrics.MaxScore),
		zap.Int64("image_duration_ms", imageMetrics.DurationMs),
		zap.Int64("total_duration_ms", result.TotalDurationMs),
	)

	return result, nil
}

// InvalidateAll evicts every cached search result. The ingestion pipeline
// calls this after indexing new content, since cached answers may now be
// incomplete.
func (s *Service) InvalidateAll(ctx context.Context) error {
	if err := s.cache.EvictAll(ctx); err != nil {
		return fmt.Errorf("invalidate result cache: %w", err)
	}
	return nil
}

// InvalidateUser evicts cached results for one user. The cache keys embed a
// query hash rather than a user index, so a scoped eviction is not possible
// with the current layout; this performs a global eviction and says so.
func (s *Service) InvalidateUser(ctx context.Context, userID string) error {
	s.logger.Warn("Per-user invalidation falls back to global eviction",
		zap.String("user_id", userID),
	)
	return s.InvalidateAll(ctx)
}
