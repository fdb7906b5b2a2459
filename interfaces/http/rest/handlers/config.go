package handlers

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"querygate/internal/catalog"
	"querygate/internal/database"
	"querygate/internal/validation"
	"querygate/pkg/common"
	apperrors "querygate/pkg/errors"
)

// maskedPassword replaces stored credentials in read endpoints.
const maskedPassword = "********"

// ConfigHandler exposes the loaded catalogue and on-demand validation.
type ConfigHandler struct {
	holder  *catalog.Holder
	manager *database.Manager
	logger  *zap.Logger
}

// NewConfigHandler creates a config handler.
func NewConfigHandler(holder *catalog.Holder, manager *database.Manager, logger *zap.Logger) *ConfigHandler {
	return &ConfigHandler{holder: holder, manager: manager, logger: logger}
}

// ConfigView is the full catalogue as served over HTTP.
type ConfigView struct {
	Databases []catalog.DatabaseSpec `json:"databases"`
	Queries   []catalog.QuerySpec    `json:"queries"`
	Endpoints []catalog.EndpointSpec `json:"endpoints"`
}

// GetConfig serves the whole catalogue with credentials masked.
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	snap := h.holder.Current()

	view := ConfigView{
		Databases: make([]catalog.DatabaseSpec, 0, len(snap.Databases)),
		Queries:   make([]catalog.QuerySpec, 0, len(snap.Queries)),
		Endpoints: make([]catalog.EndpointSpec, 0, len(snap.Endpoints)),
	}
	for _, d := range snap.Databases {
		if d.Password != "" {
			d.Password = maskedPassword
		}
		view.Databases = append(view.Databases, d)
	}
	for _, q := range snap.Queries {
		view.Queries = append(view.Queries, q)
	}
	for _, e := range snap.Endpoints {
		view.Endpoints = append(view.Endpoints, e)
	}
	sort.Slice(view.Databases, func(i, j int) bool { return view.Databases[i].Name < view.Databases[j].Name })
	sort.Slice(view.Queries, func(i, j int) bool { return view.Queries[i].Name < view.Queries[j].Name })
	sort.Slice(view.Endpoints, func(i, j int) bool { return view.Endpoints[i].Name < view.Endpoints[j].Name })

	common.RespondJSON(w, http.StatusOK, view)
}

// ListEndpoints serves the configured endpoint specs.
func (h *ConfigHandler) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	snap := h.holder.Current()
	out := make([]catalog.EndpointSpec, 0, len(snap.Endpoints))
	for _, e := range snap.Endpoints {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{"endpoints": out})
}

// GetEndpoint serves one endpoint spec by name.
func (h *ConfigHandler) GetEndpoint(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ep, ok := h.holder.Current().Endpoint(name)
	if !ok {
		common.RespondError(w, r, h.logger, apperrors.NewNotFound(fmt.Sprintf("endpoint '%s' not found", name)))
		return
	}
	common.RespondJSON(w, http.StatusOK, ep)
}

// ValidationResponse wraps the reports of one validation run.
type ValidationResponse struct {
	Valid   bool               `json:"valid"`
	Reports map[string]*validation.Report `json:"reports"`
}

// Validate runs both validation phases on the current snapshot.
func (h *ConfigHandler) Validate(w http.ResponseWriter, r *http.Request) {
	snap := h.holder.Current()
	v := validation.New(h.manager, h.logger)
	phaseA, phaseB := v.Run(r.Context(), snap)
	h.respondValidation(w, map[string]*validation.Report{
		"catalogue": phaseA,
		"schema":    phaseB,
	})
}

// ValidateEndpoints runs the endpoint checks only.
func (h *ConfigHandler) ValidateEndpoints(w http.ResponseWriter, r *http.Request) {
	v := validation.New(h.manager, h.logger)
	h.respondValidation(w, map[string]*validation.Report{
		"endpoints": v.ValidateEndpoints(h.holder.Current()),
	})
}

// ValidateQueries runs the query checks only.
func (h *ConfigHandler) ValidateQueries(w http.ResponseWriter, r *http.Request) {
	v := validation.New(h.manager, h.logger)
	h.respondValidation(w, map[string]*validation.Report{
		"queries": v.ValidateQueries(h.holder.Current()),
	})
}

// ValidateDatabases runs the database checks only.
func (h *ConfigHandler) ValidateDatabases(w http.ResponseWriter, r *http.Request) {
	v := validation.New(h.manager, h.logger)
	h.respondValidation(w, map[string]*validation.Report{
		"databases": v.ValidateDatabases(h.holder.Current()),
	})
}

// ValidateRelationships runs the cross-catalogue checks only.
func (h *ConfigHandler) ValidateRelationships(w http.ResponseWriter, r *http.Request) {
	v := validation.New(h.manager, h.logger)
	h.respondValidation(w, map[string]*validation.Report{
		"relationships": v.ValidateRelationships(h.holder.Current()),
	})
}

func (h *ConfigHandler) respondValidation(w http.ResponseWriter, reports map[string]*validation.Report) {
	valid := true
	for _, rep := range reports {
		if !rep.OK() {
			valid = false
		}
	}
	status := http.StatusOK
	if !valid {
		status = http.StatusUnprocessableEntity
	}
	common.RespondJSON(w, status, ValidationResponse{Valid: valid, Reports: reports})
}
