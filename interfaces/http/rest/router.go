package rest

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"querygate/internal/catalog"
	"querygate/internal/database"
	"querygate/internal/dispatch"
	"querygate/internal/metrics"
	"querygate/interfaces/http/rest/handlers"
	"querygate/interfaces/http/rest/middleware"
	"querygate/pkg/common"
	apperrors "querygate/pkg/errors"
)

// Router builds the HTTP surface: fixed system routes plus a swappable
// sub-router carrying the configured endpoints. Reloads replace the
// sub-router atomically; in-flight requests finish on the old one.
type Router struct {
	holder    *catalog.Holder
	manager   *database.Manager
	store     catalog.Store
	engine    *dispatch.Engine
	collector *metrics.Collector
	reload    func(ctx context.Context) error
	logger    *zap.Logger

	enableCORS bool
	dynamic    atomic.Pointer[chi.Mux]
}

// NewRouter creates a router. Call Rebind with the initial snapshot before
// serving.
func NewRouter(
	holder *catalog.Holder,
	manager *database.Manager,
	store catalog.Store,
	engine *dispatch.Engine,
	collector *metrics.Collector,
	reload func(ctx context.Context) error,
	enableCORS bool,
	logger *zap.Logger,
) *Router {
	return &Router{
		holder:     holder,
		manager:    manager,
		store:      store,
		engine:     engine,
		collector:  collector,
		reload:     reload,
		enableCORS: enableCORS,
		logger:     logger,
	}
}

// Rebind rebuilds the dynamic sub-router from the snapshot's endpoints and
// swaps it in. Endpoints with unroutable specs are skipped with a warning.
func (rt *Router) Rebind(snap *catalog.Snapshot) {
	mux := chi.NewRouter()
	mux.NotFound(rt.notFound)
	mux.MethodNotAllowed(rt.methodNotAllowed)

	for _, ep := range snap.Endpoints {
		handler := rt.engine.Handler(ep.Name)
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					rt.logger.Warn("endpoint not routable",
						zap.String("endpoint", ep.Name),
						zap.String("method", ep.Method),
						zap.String("path", ep.Path),
						zap.Any("reason", rec))
				}
			}()
			mux.Method(ep.Method, ep.Path, handler)
		}()
	}

	rt.dynamic.Store(mux)
	rt.logger.Info("endpoint routes rebound", zap.Int("endpoints", len(snap.Endpoints)))
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	router.Use(rt.collector.Middleware)

	if rt.enableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	healthHandler := handlers.NewHealthHandler(rt.manager, rt.holder, rt.logger)
	configHandler := handlers.NewConfigHandler(rt.holder, rt.manager, rt.logger)
	metricsHandler := handlers.NewMetricsHandler(rt.collector.Registry(), rt.logger)
	adminHandler := handlers.NewAdminHandler(rt.store, rt.reload, rt.logger)

	router.Get("/api/health", healthHandler.Liveness)

	router.Route("/api/generic", func(r chi.Router) {
		r.Get("/health", healthHandler.Detailed)
		r.Get("/endpoints", configHandler.ListEndpoints)
		r.Get("/endpoints/{name}", configHandler.GetEndpoint)
		r.Get("/config", configHandler.GetConfig)
		r.Get("/config/validate", configHandler.Validate)
		r.Get("/config/validate/endpoints", configHandler.ValidateEndpoints)
		r.Get("/config/validate/queries", configHandler.ValidateQueries)
		r.Get("/config/validate/databases", configHandler.ValidateDatabases)
		r.Get("/config/validate/relationships", configHandler.ValidateRelationships)
	})

	router.Route("/api/metrics", func(r chi.Router) {
		r.Get("/endpoints", metricsHandler.ListEndpointMetrics)
		r.Post("/reset", metricsHandler.Reset)
	})

	router.Get("/metrics", rt.collector.PromHandler().ServeHTTP)

	router.Route("/api/management/config-mgmt", func(r chi.Router) {
		r.Post("/reload", adminHandler.Reload)

		r.Route("/databases", func(r chi.Router) {
			r.Get("/", adminHandler.ListDatabases)
			r.Post("/", adminHandler.CreateDatabase)
			r.Get("/{name}", adminHandler.GetDatabase)
			r.Put("/{name}", adminHandler.UpdateDatabase)
			r.Delete("/{name}", adminHandler.DeleteDatabase)
		})
		r.Route("/queries", func(r chi.Router) {
			r.Get("/", adminHandler.ListQueries)
			r.Post("/", adminHandler.CreateQuery)
			r.Get("/{name}", adminHandler.GetQuery)
			r.Put("/{name}", adminHandler.UpdateQuery)
			r.Delete("/{name}", adminHandler.DeleteQuery)
		})
		r.Route("/endpoints", func(r chi.Router) {
			r.Get("/", adminHandler.ListEndpoints)
			r.Post("/", adminHandler.CreateEndpoint)
			r.Get("/{name}", adminHandler.GetEndpoint)
			r.Put("/{name}", adminHandler.UpdateEndpoint)
			r.Delete("/{name}", adminHandler.DeleteEndpoint)
		})
	})

	// Everything else belongs to the configured endpoints. The catch-all
	// mount keeps the route pattern chain intact for metrics keys.
	router.Mount("/", http.HandlerFunc(rt.serveDynamic))

	return router
}

func (rt *Router) serveDynamic(w http.ResponseWriter, r *http.Request) {
	mux := rt.dynamic.Load()
	if mux == nil {
		rt.notFound(w, r)
		return
	}
	mux.ServeHTTP(w, r)
}

func (rt *Router) notFound(w http.ResponseWriter, r *http.Request) {
	common.RespondError(w, r, rt.logger, apperrors.NewNotFound("resource not found"))
}

func (rt *Router) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	common.RespondError(w, r, rt.logger, apperrors.NewMethodNotAllowed("method not allowed"))
}
