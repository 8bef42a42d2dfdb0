package domain

import "errors"

var (
	// ErrEmptyQuery signals a blank or whitespace-only query.
	// It is surfaced as an error-valued Result, never as a transport failure.
	ErrEmptyQuery = errors.New("empty query")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	// Without a query vector no retrieval is possible, so it aborts the whole call.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrIndexUnavailable signals that a similarity index lookup failed after retries.
	ErrIndexUnavailable = errors.New("similarity index unavailable")
)
