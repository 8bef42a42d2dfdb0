package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search and embedding Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retriever",
			Name:      "search_requests_total",
			Help:      "Total number of search requests",
		},
		[]string{"status"}, // "hit" / "miss" / "invalid" / "error"
	)

	SearchBranchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retriever",
			Name:      "search_branch_duration_seconds",
			Help:      "Per-branch retrieval duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"branch"}, // "text" / "image"
	)

	SearchBranchResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retriever",
			Name:      "search_branch_results_total",
			Help:      "Total matches returned per retrieval branch",
		},
		[]string{"branch"},
	)

	SearchBranchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retriever",
			Name:      "search_branch_failures_total",
			Help:      "Branches resolved empty after timeout or retry exhaustion",
		},
		[]string{"branch", "reason"}, // reason: "timeout" / "error"
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retriever",
			Name:      "retry_attempts_total",
			Help:      "Index lookup retry attempts beyond the first try",
		},
		[]string{"branch"},
	)

	ResultCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retriever",
			Name:      "result_cache_total",
			Help:      "Result cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retriever",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retriever",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retriever",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers search and embedding metrics. Must be
// called once from main; skipped entirely when metrics are disabled.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchBranchDuration)
	prometheus.MustRegister(SearchBranchResults)
	prometheus.MustRegister(SearchBranchFailures)
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(ResultCacheTotal)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingTokensTotal)
	searchMetricsRegistered = true
}
