package search

import (
	"context"
	"time"

	"github.com/docqa-labs/retriever/internal/domain"
	"github.com/docqa-labs/retriever/internal/workerpool"
)

// Index is one similarity index collaborator. The service queries two of
// them per search: text passages and image descriptions.
type Index interface {
	Name() string
	FindRelevant(ctx context.Context, vector []float32, k int, minScore float64) ([]domain.Match, error)
}

// Embedder vectorizes query text. Its failure is fatal to a search.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// ResultCache stores assembled search results. Implementations must be
// safe for concurrent use; entries are immutable once written.
type ResultCache interface {
	Get(ctx context.Context, key string) (*domain.Result, bool)
	Put(ctx context.Context, key string, res *domain.Result, ttl time.Duration)
	EvictAll(ctx context.Context) error
}

// Dispatcher runs branch tasks on the shared worker pool.
type Dispatcher interface {
	Submit(ctx context.Context, task workerpool.Task) error
}

// Retriever joins the two concurrent index lookups.
type Retriever interface {
	Retrieve(ctx context.Context, vector []float32, k int) (text, image BranchOutcome)
}

// Config holds the retrieval tunables, mapped from the application config
// by the composition root.
type Config struct {
	MinScore          float64
	DefaultMaxResults int
	MaxResults        int
	MaxQueryLength    int
	Timeout           time.Duration
	MaxRetries        int
	BaseRetryDelay    time.Duration
	CacheTTL          time.Duration
}
