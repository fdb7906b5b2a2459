package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingSink captures saved records for assertions.
type recordingSink struct {
	mu      sync.Mutex
	records []PerformanceRecord
	fail    error
}

func (s *recordingSink) Save(_ context.Context, rec PerformanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) saved() []PerformanceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PerformanceRecord{}, s.records...)
}

func newTestCollector(sink Sink) *Collector {
	return NewCollector(DefaultCollectorConfig(), NewRegistry(), sink, zap.NewNop())
}

func routerWith(c *Collector) *chi.Mux {
	mux := chi.NewRouter()
	mux.Use(c.Middleware)
	mux.Get("/api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func TestCollectorAggregatesByRouteTemplate(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCollector(sink)
	mux := routerWith(c)

	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/users/"+id, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	snap := c.Registry().Snapshot()
	require.Len(t, snap, 1, "path params must collapse onto the template")
	assert.Equal(t, "GET /api/users/{id}", snap[0].Key)
	assert.Equal(t, int64(3), snap[0].RequestCount)
	assert.Equal(t, int64(0), snap[0].ErrorCount)
}

func TestCollectorPersistsRecords(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCollector(sink)
	mux := routerWith(c)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/users/1", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Drain(ctx))

	saved := sink.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, KindBasic, saved[0].Kind)
	assert.Equal(t, "GET /api/users/{id}", saved[0].Endpoint)
	assert.Equal(t, http.StatusOK, saved[0].StatusCode)
	assert.NotEmpty(t, saved[0].ID)
}

func TestCollectorSamplingZeroPersistsNothing(t *testing.T) {
	sink := &recordingSink{}
	cfg := DefaultCollectorConfig()
	cfg.SampleRate = 0
	c := NewCollector(cfg, NewRegistry(), sink, zap.NewNop())
	mux := routerWith(c)

	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/users/1", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Drain(ctx))

	// Aggregates and Prometheus series still see every request.
	require.Len(t, c.Registry().Snapshot(), 1)
	assert.Equal(t, int64(20), c.Registry().Snapshot()[0].RequestCount)
	assert.Empty(t, sink.saved())
}

func TestCollectorSynchronousSave(t *testing.T) {
	sink := &recordingSink{}
	cfg := DefaultCollectorConfig()
	cfg.AsyncSave = false
	c := NewCollector(cfg, NewRegistry(), sink, zap.NewNop())
	mux := routerWith(c)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/users/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// No Drain: the record is on disk before the middleware returns.
	saved := sink.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, KindBasic, saved[0].Kind)
}

func TestCollectorExcludesSystemPaths(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCollector(sink)
	mux := routerWith(c)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Drain(ctx))

	assert.Empty(t, c.Registry().Snapshot())
	assert.Empty(t, sink.saved())
}

func TestCollectorSinkFailureNeverFailsRequest(t *testing.T) {
	sink := &recordingSink{fail: errors.New("sink down")}
	c := newTestCollector(sink)
	mux := routerWith(c)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/users/1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Drain(ctx))

	// The measurement itself survives; only persistence is dropped.
	require.Len(t, c.Registry().Snapshot(), 1)
}

func TestCollectorDisabled(t *testing.T) {
	cfg := DefaultCollectorConfig()
	cfg.Enabled = false
	c := NewCollector(cfg, NewRegistry(), &recordingSink{}, zap.NewNop())
	mux := routerWith(c)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/users/1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, c.Registry().Snapshot())
}

func TestCollectorPromEndpoint(t *testing.T) {
	c := newTestCollector(&recordingSink{})
	mux := routerWith(c)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/users/1", nil))

	rec = httptest.NewRecorder()
	c.PromHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "querygate_requests_total")
}
