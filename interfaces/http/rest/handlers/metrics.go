package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"querygate/internal/metrics"
	"querygate/pkg/common"
)

// MetricsHandler exposes the in-memory endpoint aggregates.
type MetricsHandler struct {
	registry *metrics.Registry
	logger   *zap.Logger
}

// NewMetricsHandler creates a metrics handler.
func NewMetricsHandler(registry *metrics.Registry, logger *zap.Logger) *MetricsHandler {
	return &MetricsHandler{registry: registry, logger: logger}
}

// ListEndpointMetrics serves the per-route aggregates.
func (h *MetricsHandler) ListEndpointMetrics(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"endpoints": h.registry.Snapshot(),
	})
}

// Reset drops every aggregate.
func (h *MetricsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.registry.Reset()
	h.logger.Info("endpoint metrics reset")
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Metrics reset",
	})
}
