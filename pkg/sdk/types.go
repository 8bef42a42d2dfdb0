package retriever

import "fmt"

// SearchRequest is the input to Search. MaxResults of zero lets the server
// apply its default; UserID is optional and scopes cache entries.
type SearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	UserID     string `json:"user_id,omitempty"`
}

type invalidateRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// Match is a single hit from one of the similarity indexes.
type Match struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}

// SearchMetrics summarizes one retrieval branch.
type SearchMetrics struct {
	ResultCount  int     `json:"result_count"`
	AverageScore float64 `json:"average_score"`
	MaxScore     float64 `json:"max_score"`
	MinScore     float64 `json:"min_score"`
	DurationMs   int64   `json:"duration_ms"`
}

// SearchResult is the outcome of one search.
type SearchResult struct {
	Query           string        `json:"query"`
	TextResults     []Match       `json:"text_results"`
	ImageResults    []Match       `json:"image_results"`
	TextMetrics     SearchMetrics `json:"text_metrics"`
	ImageMetrics    SearchMetrics `json:"image_metrics"`
	TotalDurationMs int64         `json:"total_duration_ms"`
	WasCached       bool          `json:"was_cached"`
	Timestamp       int64         `json:"timestamp"`
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            `json:"status"` // "ok", "degraded", "error"
	Checks map[string]string `json:"checks"` // component -> "ok"/"error"
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("retriever: %s (%d %s)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("retriever: %s (%d)", e.Message, e.StatusCode)
}
