package metrics

import (
	"context"
	"math/rand"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// CollectorConfig tunes the request measurement middleware.
type CollectorConfig struct {
	Enabled bool
	// SampleRate in [0,1] persists that fraction of records to the sink;
	// zero persists nothing. In-memory aggregates and Prometheus series
	// always see every request.
	SampleRate float64
	// AsyncSave hands sink writes to a background task. When false, writes
	// happen on the request path before the middleware returns.
	AsyncSave bool
	// ExcludePaths are path prefixes that are never measured.
	ExcludePaths []string
	// SaveTimeout bounds one sink write.
	SaveTimeout time.Duration
}

// DefaultCollectorConfig returns the collector defaults.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		Enabled:      true,
		SampleRate:   1.0,
		AsyncSave:    true,
		ExcludePaths: []string{"/metrics", "/api/health", "/api/metrics"},
		SaveTimeout:  5 * time.Second,
	}
}

// Collector measures every routed request: Prometheus series and in-memory
// aggregates synchronously, sink persistence asynchronously behind a
// circuit breaker. A failing sink can never slow a response down.
type Collector struct {
	cfg      CollectorConfig
	registry *Registry
	sink     Sink
	logger   *zap.Logger

	promReg       *prometheus.Registry
	requestsTotal *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	sinkDropped   prometheus.Counter

	breaker *gobreaker.CircuitBreaker
	wg      sync.WaitGroup
}

// NewCollector creates a collector writing to the given sink.
func NewCollector(cfg CollectorConfig, registry *Registry, sink Sink, logger *zap.Logger) *Collector {
	if cfg.SampleRate < 0 || cfg.SampleRate > 1 {
		cfg.SampleRate = 1.0
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 5 * time.Second
	}
	if sink == nil {
		sink = NoopSink{}
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "querygate_requests_total",
		Help: "Requests by route template, method and status.",
	}, []string{"route", "method", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "querygate_request_duration_seconds",
		Help:    "Request latency by route template and method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
	sinkDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "querygate_metric_records_dropped_total",
		Help: "Performance records dropped by sink failures or the open breaker.",
	})
	promReg.MustRegister(requestsTotal, duration, sinkDropped)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "metrics-sink",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("metrics sink breaker state changed",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &Collector{
		cfg:           cfg,
		registry:      registry,
		sink:          sink,
		logger:        logger,
		promReg:       promReg,
		requestsTotal: requestsTotal,
		duration:      duration,
		sinkDropped:   sinkDropped,
		breaker:       breaker,
	}
}

// Registry returns the in-memory aggregate registry.
func (c *Collector) Registry() *Registry { return c.registry }

// PromHandler serves the Prometheus exposition endpoint.
func (c *Collector) PromHandler() http.Handler {
	return promhttp.HandlerFor(c.promReg, promhttp.HandlerOpts{})
}

// Middleware measures routed requests. It must sit inside the chi router so
// the route template is resolvable after the handler runs.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.cfg.Enabled || !c.shouldCollect(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		var before runtime.MemStats
		runtime.ReadMemStats(&before)
		start := time.Now()

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		var after runtime.MemStats
		runtime.ReadMemStats(&after)
		heapDelta := int64(after.HeapAlloc) - int64(before.HeapAlloc)
		if heapDelta < 0 {
			heapDelta = 0
		}

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		key := r.Method + " " + route
		durationMs := float64(elapsed.Microseconds()) / 1000.0

		c.registry.Observe(key, ww.Status(), durationMs, start)
		c.requestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		c.duration.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())

		if c.sampled() {
			c.persist(PerformanceRecord{
				ID:           uuid.NewString(),
				Kind:         KindBasic,
				Endpoint:     key,
				Method:       r.Method,
				PathTemplate: route,
				StatusCode:   ww.Status(),
				DurationMs:   durationMs,
				HeapBytes:    heapDelta,
				Timestamp:    start,
			})
		}
	})
}

// sampled decides whether this request's record is persisted. A rate of 1
// persists everything, a rate of 0 nothing.
func (c *Collector) sampled() bool {
	if c.cfg.SampleRate >= 1 {
		return true
	}
	return rand.Float64() < c.cfg.SampleRate
}

// persist hands the record to the sink, on a detached goroutine unless
// synchronous saves are configured. The breaker sheds writes while the sink
// is unhealthy.
func (c *Collector) persist(rec PerformanceRecord) {
	if !c.cfg.AsyncSave {
		c.save(rec)
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.save(rec)
	}()
}

func (c *Collector) save(rec PerformanceRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SaveTimeout)
	defer cancel()

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.sink.Save(ctx, rec)
	})
	if err != nil {
		c.sinkDropped.Inc()
		c.logger.Debug("performance record dropped",
			zap.String("endpoint", rec.Endpoint), zap.Error(err))
	}
}

// Drain waits for in-flight sink writes, up to the context deadline.
func (c *Collector) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Collector) shouldCollect(path string) bool {
	for _, prefix := range c.cfg.ExcludePaths {
		if path == prefix || (len(path) > len(prefix) && path[:len(prefix)+1] == prefix+"/") {
			return false
		}
	}
	return true
}
