package health

import "context"

// StoragePinger checks that the index and cache store is reachable.
type StoragePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
