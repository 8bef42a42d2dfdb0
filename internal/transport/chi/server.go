// Package chi exposes the retrieval service over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/docqa-labs/retriever/internal/domain"
	logpkg "github.com/docqa-labs/retriever/internal/logger"
	healthuc "github.com/docqa-labs/retriever/internal/usecase/health"
)

// ErrorCode identifies an API error class.
type ErrorCode string

const (
	CodeBadRequest             ErrorCode = "bad_request"
	CodeValidationFailed       ErrorCode = "validation_failed"
	CodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	CodeStorageUnavailable     ErrorCode = "storage_unavailable"
	CodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// SearchRequest is the POST /v1/search body.
type SearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	UserID     string `json:"user_id,omitempty"`
}

// InvalidateRequest is the POST /v1/cache/invalidate body. An empty body or
// empty user_id invalidates everything.
type InvalidateRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// HealthResponse is the GET /healthz body.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// SearchService is the search usecase surface the transport needs.
type SearchService interface {
	Search(ctx context.Context, query string, maxResults int, userID string) (*domain.Result, error)
	InvalidateAll(ctx context.Context) error
	InvalidateUser(ctx context.Context, userID string) error
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	search        SearchService
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(search SearchService, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		search: search,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProviderError),
		sentinelHandler(domain.ErrIndexUnavailable, http.StatusServiceUnavailable, CodeStorageUnavailable),
	}
	return s
}

// Routes mounts all API routes on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/search", s.handleSearch)
	r.Post("/v1/cache/invalidate", s.handleInvalidate)
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

// handleSearch handles POST /v1/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := s.search.Search(r.Context(), req.Query, req.MaxResults, req.UserID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	if result.HasError {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, result.ErrorMessage)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleInvalidate handles POST /v1/cache/invalidate. The body is optional:
// no body means a global invalidation.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	var err error
	if req.UserID != "" {
		err = s.search.InvalidateUser(r.Context(), req.UserID)
	} else {
		err = s.search.InvalidateAll(r.Context())
	}
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	s.logger.Info("Result cache invalidated", zap.String("user_id", req.UserID))
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEmptyQuery,
		domain.ErrEmbeddingProviderError,
		domain.ErrIndexUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	// The request-scoped logger carries the request_id.
	reqLogger := logpkg.FromContext(r.Context())
	reqLogger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	reqLogger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
