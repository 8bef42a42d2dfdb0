package domain

import "time"

// Match is a single hit from a similarity index. Scores are similarities
// in [0, 1]; metadata fields come back as stored index fields.
type Match struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}

// SearchMetrics summarizes one retrieval branch. All score fields are zero
// when ResultCount is zero.
type SearchMetrics struct {
	ResultCount  int     `json:"result_count"`
	AverageScore float64 `json:"average_score"`
	MaxScore     float64 `json:"max_score"`
	MinScore     float64 `json:"min_score"`
	DurationMs   int64   `json:"duration_ms"`
}

// Result is the outcome of one multimodal search. It is assembled once by
// the orchestrator and is immutable afterwards, except for WasCached which
// reflects how this particular copy was obtained. It is also the cache
// payload, hence the JSON tags.
type Result struct {
	Query           string        `json:"query"`
	TextResults     []Match       `json:"text_results"`
	ImageResults    []Match       `json:"image_results"`
	TextMetrics     SearchMetrics `json:"text_metrics"`
	ImageMetrics    SearchMetrics `json:"image_metrics"`
	TotalDurationMs int64         `json:"total_duration_ms"`
	WasCached       bool          `json:"was_cached"`
	HasError        bool          `json:"has_error"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	Timestamp       int64         `json:"timestamp"`
}

// NewErrorResult builds an empty error-valued result for invalid input.
func NewErrorResult(query, message string) *Result {
	return &Result{
		Query:        query,
		TextResults:  []Match{},
		ImageResults: []Match{},
		HasError:     true,
		ErrorMessage: message,
		Timestamp:    time.Now().UnixMilli(),
	}
}
