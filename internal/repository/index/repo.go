// Package index adapts FT.SEARCH vector lookups into domain matches. The
// service holds two instances, one per modality (text passages and image
// descriptions); both are filled by the ingestion pipeline, which this
// service only reads.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docqa-labs/retriever/internal/db"
	"github.com/docqa-labs/retriever/internal/domain"
)

// contentField holds the passage text in every indexed document.
const contentField = "__content"

// store is the consumer interface for index lookups (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo queries one similarity index.
type Repo struct {
	store     store
	name      string
	indexName string
	keyPrefix string
}

// New creates an index repository for the named collection ("text", "image").
func New(s store, storagePrefix, collection string) *Repo {
	return &Repo{
		store:     s,
		name:      collection,
		indexName: fmt.Sprintf("%s%s:idx", storagePrefix, collection),
		keyPrefix: fmt.Sprintf("%s%s:", storagePrefix, collection),
	}
}

// Name returns the collection name this repo queries.
func (r *Repo) Name() string { return r.name }

// FindRelevant returns the top-k matches for the vector, dropping anything
// scoring below minScore. Scores are cosine similarities in [0, 1].
func (r *Repo) FindRelevant(ctx context.Context, vector []float32, k int, minScore float64) ([]domain.Match, error) {
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName: r.indexName,
		Vector:    vector,
		K:         k,
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, fmt.Errorf("search knn %s: %w", r.name, domain.ErrIndexUnavailable)
		}
		return nil, fmt.Errorf("search knn %s: %w", r.name, err)
	}

	if sr == nil || len(sr.Entries) == 0 {
		return nil, nil
	}

	matches := make([]domain.Match, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		if entry.Score < minScore {
			continue
		}
		matches = append(matches, r.toMatch(entry))
	}
	return matches, nil
}

// toMatch converts a raw search entry. Internal "__"-prefixed fields never
// surface as metadata; the document id (key minus prefix) always does.
func (r *Repo) toMatch(entry db.SearchEntry) domain.Match {
	metadata := make(map[string]string, len(entry.Fields))
	metadata["id"] = strings.TrimPrefix(entry.Key, r.keyPrefix)

	var content string
	for name, value := range entry.Fields {
		if name == contentField {
			content = value
			continue
		}
		if strings.HasPrefix(name, "__") {
			continue
		}
		metadata[name] = value
	}

	return domain.Match{
		Content:  content,
		Metadata: metadata,
		Score:    entry.Score,
	}
}
