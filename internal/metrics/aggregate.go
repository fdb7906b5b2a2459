package metrics

import (
	"sort"
	"sync"
	"time"
)

// EndpointAggregate is the rolled-up view of one route. The key is
// "METHOD pathTemplate" so path parameters collapse onto their template.
type EndpointAggregate struct {
	Key           string    `json:"key"`
	RequestCount  int64     `json:"requestCount"`
	ErrorCount    int64     `json:"errorCount"`
	TotalTimeMs   float64   `json:"totalTimeMs"`
	MinTimeMs     float64   `json:"minTimeMs"`
	MaxTimeMs     float64   `json:"maxTimeMs"`
	AverageTimeMs float64   `json:"averageTimeMs"`
	LastRequestAt time.Time `json:"lastRequestAt"`
}

// Registry accumulates per-route aggregates in memory. Reset drops all of
// them; aggregates survive catalogue reloads but not restarts.
type Registry struct {
	mu         sync.Mutex
	aggregates map[string]*EndpointAggregate
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{aggregates: map[string]*EndpointAggregate{}}
}

// Observe folds one measurement into the route's aggregate.
func (r *Registry) Observe(key string, status int, durationMs float64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agg, ok := r.aggregates[key]
	if !ok {
		agg = &EndpointAggregate{Key: key, MinTimeMs: durationMs, MaxTimeMs: durationMs}
		r.aggregates[key] = agg
	}

	agg.RequestCount++
	if status >= 400 {
		agg.ErrorCount++
	}
	agg.TotalTimeMs += durationMs
	if durationMs < agg.MinTimeMs {
		agg.MinTimeMs = durationMs
	}
	if durationMs > agg.MaxTimeMs {
		agg.MaxTimeMs = durationMs
	}
	agg.AverageTimeMs = agg.TotalTimeMs / float64(agg.RequestCount)
	if at.After(agg.LastRequestAt) {
		agg.LastRequestAt = at
	}
}

// Snapshot returns a copy of every aggregate, sorted by key.
func (r *Registry) Snapshot() []EndpointAggregate {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]EndpointAggregate, 0, len(r.aggregates))
	for _, agg := range r.aggregates {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Reset drops every aggregate.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aggregates = map[string]*EndpointAggregate{}
}
