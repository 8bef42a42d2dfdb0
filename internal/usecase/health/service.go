package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates embedding is down but retrieval storage is up.
	Degraded Status = "degraded"
	// Unhealthy indicates retrieval storage is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	storage   StoragePinger
	embedding EmbeddingChecker
}

// New creates a Service. embedding can be nil.
func New(storage StoragePinger, embedding EmbeddingChecker) *Service {
	return &Service{storage: storage, embedding: embedding}
}

// Check runs health checks against all components. Storage holds both the
// similarity indexes and the result cache, so its failure is fatal; a
// failing embedding provider only degrades the service.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	storageOK := true
	if err := s.storage.Ping(ctx); err != nil {
		checks["storage"] = CheckError
		storageOK = false
	} else {
		checks["storage"] = CheckOK
	}

	embeddingOK := true
	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
			embeddingOK = false
		} else {
			checks["embedding"] = CheckOK
		}
	}

	switch {
	case !storageOK:
		return Report{Status: Unhealthy, Checks: checks}
	case !embeddingOK:
		return Report{Status: Degraded, Checks: checks}
	default:
		return Report{Status: Healthy, Checks: checks}
	}
}
