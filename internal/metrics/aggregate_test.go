package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryObserve(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	r.Observe("GET /api/users/{id}", 200, 10, now)
	r.Observe("GET /api/users/{id}", 200, 30, now.Add(time.Second))
	r.Observe("GET /api/users/{id}", 404, 5, now.Add(2*time.Second))
	r.Observe("GET /api/users", 200, 50, now)

	snap := r.Snapshot()
	require.Len(t, snap, 2)

	// Sorted by key.
	assert.Equal(t, "GET /api/users", snap[0].Key)
	agg := snap[1]
	assert.Equal(t, "GET /api/users/{id}", agg.Key)
	assert.Equal(t, int64(3), agg.RequestCount)
	assert.Equal(t, int64(1), agg.ErrorCount)
	assert.Equal(t, float64(5), agg.MinTimeMs)
	assert.Equal(t, float64(30), agg.MaxTimeMs)
	assert.Equal(t, float64(15), agg.AverageTimeMs)
	assert.Equal(t, now.Add(2*time.Second), agg.LastRequestAt)
}

func TestRegistryReset(t *testing.T) {
	r := NewRegistry()
	r.Observe("GET /x", 200, 1, time.Now())
	require.Len(t, r.Snapshot(), 1)

	r.Reset()
	assert.Empty(t, r.Snapshot())
}

func TestRegistrySnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	r.Observe("GET /x", 200, 1, time.Now())

	snap := r.Snapshot()
	snap[0].RequestCount = 99

	assert.Equal(t, int64(1), r.Snapshot()[0].RequestCount)
}
