package search

import "github.com/docqa-labs/retriever/internal/domain"

// Aggregate re-filters a branch outcome by minScore and computes its
// metrics. The indexes are expected to apply the threshold themselves; the
// re-filter guards against collaborator inconsistencies.
func Aggregate(outcome BranchOutcome, minScore float64) ([]domain.Match, domain.SearchMetrics) {
	items := make([]domain.Match, 0, len(outcome.Matches))
	for _, m := range outcome.Matches {
		if m.Score >= minScore {
			items = append(items, m)
		}
	}

	m := domain.SearchMetrics{
		ResultCount: len(items),
		DurationMs:  outcome.DurationMs,
	}
	if len(items) == 0 {
		return items, m
	}

	var sum float64
	m.MinScore = items[0].Score
	for _, item := range items {
		sum += item.Score
		if item.Score > m.MaxScore {
			m.MaxScore = item.Score
		}
		if item.Score < m.MinScore {
			m.MinScore = item.Score
		}
	}
	m.AverageScore = sum / float64(len(items))

	return items, m
}
