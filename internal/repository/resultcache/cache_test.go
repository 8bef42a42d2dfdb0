package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/docqa-labs/retriever/internal/db"
	"github.com/docqa-labs/retriever/internal/domain"
)

// --- Mocks ---

type mockStore struct {
	data    map[string][]byte
	getErr  error
	setErr  error
	delErr  error
	scanErr error
	lastTTL time.Duration
}

func newMockStore() *mockStore {
	return &mockStore{data: map[string][]byte{}}
}

func (m *mockStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return data, nil
}

func (m *mockStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.lastTTL = ttl
	return nil
}

func (m *mockStore) Del(_ context.Context, key string) error {
	if m.delErr != nil {
		return m.delErr
	}
	delete(m.data, key)
	return nil
}

func (m *mockStore) Scan(_ context.Context, pattern string) ([]string, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func testResult(query string) *domain.Result {
	return &domain.Result{
		Query:        query,
		TextResults:  []domain.Match{{Content: "passage", Score: 0.9}},
		ImageResults: []domain.Match{},
		TextMetrics:  domain.SearchMetrics{ResultCount: 1, AverageScore: 0.9, MaxScore: 0.9, MinScore: 0.9},
		Timestamp:    12345,
	}
}

// --- Key builder ---

func TestBuildKey_Deterministic(t *testing.T) {
	k1 := BuildKey("retriever:", "abc123", "invoice payment terms", 5, "u1", 0.7)
	k2 := BuildKey("retriever:", "abc123", "invoice payment terms", 5, "u1", 0.7)
	if k1 != k2 {
		t.Fatalf("keys differ:\n%s\n%s", k1, k2)
	}
}

func TestBuildKey_NormalizesQueryText(t *testing.T) {
	k1 := BuildKey("retriever:", "v", "invoice payment terms", 5, "u1", 0.7)
	k2 := BuildKey("retriever:", "v", "  invoice \t payment\nterms ", 5, "u1", 0.7)
	if k1 != k2 {
		t.Error("whitespace variants of the same query must share a key")
	}
}

func TestBuildKey_EachInputChangesKey(t *testing.T) {
	base := BuildKey("retriever:", "v1", "hello", 5, "u1", 0.7)

	variants := map[string]string{
		"query":      BuildKey("retriever:", "v1", "goodbye", 5, "u1", 0.7),
		"maxResults": BuildKey("retriever:", "v1", "hello", 6, "u1", 0.7),
		"userID":     BuildKey("retriever:", "v1", "hello", 5, "u2", 0.7),
		"minScore":   BuildKey("retriever:", "v1", "hello", 5, "u1", 0.8),
		"cfgVersion": BuildKey("retriever:", "v2", "hello", 5, "u1", 0.7),
	}
	for name, key := range variants {
		if key == base {
			t.Errorf("changing %s did not change the key", name)
		}
	}
}

func TestBuildKey_BlankUserUsesPlaceholder(t *testing.T) {
	key := BuildKey("retriever:", "v", "hello", 5, "  ", 0.7)
	if !strings.Contains(key, ":u="+DefaultUser+":") {
		t.Errorf("expected placeholder user in key, got %s", key)
	}
}

func TestBuildKey_DoesNotLeakQueryText(t *testing.T) {
	key := BuildKey("retriever:", "v", "super secret question", 5, "u1", 0.7)
	if strings.Contains(key, "secret") {
		t.Errorf("raw query text leaked into key: %s", key)
	}
}

// --- Repo ---

func TestRepo_PutGetRoundtrip(t *testing.T) {
	ms := newMockStore()
	repo := New(ms, "retriever:", nil, zap.NewNop())

	key := BuildKey("retriever:", "v", "hello", 5, "u1", 0.7)
	repo.Put(context.Background(), key, testResult("hello"), 30*time.Minute)

	if ms.lastTTL != 30*time.Minute {
		t.Errorf("TTL = %v, want 30m", ms.lastTTL)
	}

	got, ok := repo.Get(context.Background(), key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Query != "hello" || len(got.TextResults) != 1 {
		t.Errorf("unexpected cached result: %+v", got)
	}
}

func TestRepo_GetMiss(t *testing.T) {
	repo := New(newMockStore(), "retriever:", nil, zap.NewNop())

	if _, ok := repo.Get(context.Background(), "retriever:search:nope"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestRepo_GetStoreErrorIsMiss(t *testing.T) {
	ms := newMockStore()
	ms.getErr = errors.New("connection refused")
	repo := New(ms, "retriever:", nil, zap.NewNop())

	if _, ok := repo.Get(context.Background(), "k"); ok {
		t.Error("store failure must read as a miss")
	}
}

func TestRepo_GetCorruptPayloadIsMiss(t *testing.T) {
	ms := newMockStore()
	ms.data["k"] = []byte("{not json")
	repo := New(ms, "retriever:", nil, zap.NewNop())

	if _, ok := repo.Get(context.Background(), "k"); ok {
		t.Error("corrupt payload must read as a miss")
	}
}

func TestRepo_PutStoreErrorIsSwallowed(t *testing.T) {
	ms := newMockStore()
	ms.setErr = errors.New("read-only replica")
	repo := New(ms, "retriever:", nil, zap.NewNop())

	// Must not panic or propagate.
	repo.Put(context.Background(), "k", testResult("q"), time.Minute)
}

func TestRepo_EvictAll(t *testing.T) {
	ms := newMockStore()
	repo := New(ms, "retriever:", nil, zap.NewNop())

	data, _ := json.Marshal(testResult("a"))
	ms.data["retriever:search:one"] = data
	ms.data["retriever:search:two"] = data
	ms.data["retriever:other:keep"] = data

	if err := repo.EvictAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ms.data) != 1 {
		t.Errorf("expected only non-search keys to survive, have %v", ms.data)
	}
	if _, ok := ms.data["retriever:other:keep"]; !ok {
		t.Error("non-search key was evicted")
	}
}

func TestRepo_EvictAllScanError(t *testing.T) {
	ms := newMockStore()
	ms.scanErr = errors.New("scan broken")
	repo := New(ms, "retriever:", nil, zap.NewNop())

	if err := repo.EvictAll(context.Background()); err == nil {
		t.Error("expected scan error to propagate")
	}
}
