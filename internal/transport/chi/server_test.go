package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	gochi "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/docqa-labs/retriever/internal/domain"
	healthuc "github.com/docqa-labs/retriever/internal/usecase/health"
)

// --- Mocks ---

type mockSearchService struct {
	result          *domain.Result
	searchErr       error
	lastQuery       string
	lastMaxResults  int
	lastUserID      string
	invalidateAll   int
	invalidateUser  int
	lastInvalidated string
	invalidateErr   error
}

func (m *mockSearchService) Search(_ context.Context, query string, maxResults int, userID string) (*domain.Result, error) {
	m.lastQuery = query
	m.lastMaxResults = maxResults
	m.lastUserID = userID
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.result, nil
}

func (m *mockSearchService) InvalidateAll(context.Context) error {
	m.invalidateAll++
	return m.invalidateErr
}

func (m *mockSearchService) InvalidateUser(_ context.Context, userID string) error {
	m.invalidateUser++
	m.lastInvalidated = userID
	return m.invalidateErr
}

type stubPinger struct{ err error }

func (s *stubPinger) Ping(context.Context) error { return s.err }

func newTestRouter(search SearchService, storageErr error) http.Handler {
	srv := NewServer(search, healthuc.New(&stubPinger{err: storageErr}, nil), zap.NewNop())
	r := gochi.NewRouter()
	srv.Routes(r)
	return r
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// --- Tests ---

func TestSearchEndpoint_OK(t *testing.T) {
	svc := &mockSearchService{
		result: &domain.Result{
			Query:       "invoice payment terms",
			TextResults: []domain.Match{{Content: "net 30", Score: 0.9}},
			ImageResults: []domain.Match{
				{Content: "invoice scan", Score: 0.85},
			},
		},
	}
	handler := newTestRouter(svc, nil)

	rr := postJSON(t, handler, "/v1/search", SearchRequest{
		Query:      "invoice payment terms",
		MaxResults: 5,
		UserID:     "u1",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rr.Code, rr.Body.String())
	}
	if svc.lastQuery != "invoice payment terms" || svc.lastMaxResults != 5 || svc.lastUserID != "u1" {
		t.Errorf("service received query=%q max=%d user=%q", svc.lastQuery, svc.lastMaxResults, svc.lastUserID)
	}

	var res domain.Result
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(res.TextResults) != 1 || res.TextResults[0].Content != "net 30" {
		t.Errorf("unexpected text results: %+v", res.TextResults)
	}
}

func TestSearchEndpoint_MalformedBody(t *testing.T) {
	handler := newTestRouter(&mockSearchService{}, nil)

	req := httptest.NewRequest("POST", "/v1/search", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != CodeBadRequest {
		t.Errorf("code = %s, want %s", errResp.Code, CodeBadRequest)
	}
}

func TestSearchEndpoint_InvalidQuery(t *testing.T) {
	svc := &mockSearchService{result: domain.NewErrorResult("  ", "invalid query")}
	handler := newTestRouter(svc, nil)

	rr := postJSON(t, handler, "/v1/search", SearchRequest{Query: "  "})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != CodeValidationFailed {
		t.Errorf("code = %s, want %s", errResp.Code, CodeValidationFailed)
	}
}

func TestSearchEndpoint_EmbeddingProviderDown(t *testing.T) {
	svc := &mockSearchService{searchErr: domain.ErrEmbeddingProviderError}
	handler := newTestRouter(svc, nil)

	rr := postJSON(t, handler, "/v1/search", SearchRequest{Query: "q"})

	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rr.Code)
	}
}

func TestSearchEndpoint_UnknownError(t *testing.T) {
	svc := &mockSearchService{searchErr: errors.New("boom")}
	handler := newTestRouter(svc, nil)

	rr := postJSON(t, handler, "/v1/search", SearchRequest{Query: "q"})

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	// Internal errors must not leak details to the client.
	if errResp.Message != "internal error" {
		t.Errorf("message = %q, want %q", errResp.Message, "internal error")
	}
}

func TestInvalidateEndpoint_Global(t *testing.T) {
	svc := &mockSearchService{}
	handler := newTestRouter(svc, nil)

	req := httptest.NewRequest("POST", "/v1/cache/invalidate", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rr.Code)
	}
	if svc.invalidateAll != 1 || svc.invalidateUser != 0 {
		t.Errorf("invalidateAll = %d, invalidateUser = %d", svc.invalidateAll, svc.invalidateUser)
	}
}

func TestInvalidateEndpoint_PerUser(t *testing.T) {
	svc := &mockSearchService{}
	handler := newTestRouter(svc, nil)

	rr := postJSON(t, handler, "/v1/cache/invalidate", InvalidateRequest{UserID: "u1"})

	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rr.Code)
	}
	if svc.invalidateUser != 1 || svc.lastInvalidated != "u1" {
		t.Errorf("invalidateUser = %d, lastInvalidated = %q", svc.invalidateUser, svc.lastInvalidated)
	}
}

func TestInvalidateEndpoint_StorageError(t *testing.T) {
	svc := &mockSearchService{invalidateErr: errors.New("scan failed")}
	handler := newTestRouter(svc, nil)

	req := httptest.NewRequest("POST", "/v1/cache/invalidate", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

func TestHealthEndpoint_Healthy(t *testing.T) {
	handler := newTestRouter(&mockSearchService{}, nil)

	req := httptest.NewRequest("GET", "/healthz", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != string(healthuc.Healthy) {
		t.Errorf("health status = %q, want %q", resp.Status, healthuc.Healthy)
	}
	if resp.Checks["storage"] != string(healthuc.CheckOK) {
		t.Errorf("storage check = %q, want ok", resp.Checks["storage"])
	}
}

func TestHealthEndpoint_StorageDown(t *testing.T) {
	handler := newTestRouter(&mockSearchService{}, errors.New("conn refused"))

	req := httptest.NewRequest("GET", "/healthz", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}
