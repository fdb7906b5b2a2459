package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"querygate/internal/catalog"
	"querygate/internal/database"
	"querygate/pkg/common"
)

// DatabaseHealth is the per-database entry in health responses.
type DatabaseHealth struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp string                    `json:"timestamp"`
	Endpoints int                       `json:"endpoints"`
	Databases map[string]DatabaseHealth `json:"databases"`
}

// HealthHandler serves liveness and per-database health.
type HealthHandler struct {
	manager *database.Manager
	holder  *catalog.Holder
	logger  *zap.Logger
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(manager *database.Manager, holder *catalog.Holder, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{manager: manager, holder: holder, logger: logger}
}

// Liveness reports whether the process is serving. Degraded databases do
// not fail liveness; they show up in the body.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, h.build(r, false))
}

// Detailed probes every available database with its connection test query.
// Status 503 when any configured database is down.
func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	resp := h.build(r, true)
	status := http.StatusOK
	if resp.Status != "UP" {
		status = http.StatusServiceUnavailable
	}
	common.RespondJSON(w, status, resp)
}

func (h *HealthHandler) build(r *http.Request, probe bool) HealthResponse {
	databases := map[string]DatabaseHealth{}
	allUp := true

	for _, name := range h.manager.AvailableNames() {
		entry := DatabaseHealth{Status: "UP"}
		if probe && !h.manager.Healthy(r.Context(), name) {
			entry = DatabaseHealth{Status: "DOWN", Reason: "connection test query failed"}
			allUp = false
		}
		databases[name] = entry
	}
	for name, reason := range h.manager.FailedNames() {
		databases[name] = DatabaseHealth{Status: "DOWN", Reason: reason}
		allUp = false
	}

	status := "UP"
	if !allUp {
		status = "DEGRADED"
	}
	return HealthResponse{
		Status:    status,
		Timestamp: time.Now().Format(common.TimestampLayout),
		Endpoints: len(h.holder.Current().Endpoints),
		Databases: databases,
	}
}
