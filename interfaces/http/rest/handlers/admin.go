package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"querygate/internal/catalog"
	"querygate/pkg/common"
	apperrors "querygate/pkg/errors"
)

// maxBodyBytes bounds management request bodies.
const maxBodyBytes = 1 << 20

// AdminHandler is the catalogue management surface: CRUD over the store
// plus explicit reload. Every successful mutation triggers a reload so the
// running snapshot tracks the store.
type AdminHandler struct {
	store  catalog.Store
	reload func(ctx context.Context) error
	logger *zap.Logger
}

// NewAdminHandler creates the management handler. reload rebuilds the
// snapshot, pools and routes from the store.
func NewAdminHandler(store catalog.Store, reload func(ctx context.Context) error, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{store: store, reload: reload, logger: logger}
}

// Reload rebuilds the running snapshot from the store.
func (h *AdminHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.reload(r.Context()); err != nil {
		common.RespondError(w, r, h.logger, apperrors.Wrap(err, "reload failed"))
		return
	}
	h.logger.Info("catalogue reloaded on request")
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Configuration reloaded",
	})
}

// ---- databases ----

func (h *AdminHandler) ListDatabases(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.LoadAll()
	if err != nil {
		common.RespondError(w, r, h.logger, storeError(err))
		return
	}
	out := make([]catalog.DatabaseSpec, 0, len(snap.Databases))
	for _, d := range snap.Databases {
		d.Password = ""
		out = append(out, d)
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{"databases": out})
}

func (h *AdminHandler) GetDatabase(w http.ResponseWriter, r *http.Request) {
	spec, err := h.store.Database(chi.URLParam(r, "name"))
	if err != nil {
		common.RespondError(w, r, h.logger, storeError(err))
		return
	}
	spec.Password = ""
	common.RespondJSON(w, http.StatusOK, spec)
}

func (h *AdminHandler) CreateDatabase(w http.ResponseWriter, r *http.Request) {
	var spec catalog.DatabaseSpec
	if !h.decode(w, r, &spec) {
		return
	}
	exists, err := h.store.DatabaseExists(spec.Name)
	if err != nil {
		common.RespondError(w, r, h.logger, storeError(err))
		return
	}
	if exists {
		common.RespondError(w, r, h.logger, apperrors.NewConflict(fmt.Sprintf("database '%s' already exists", spec.Name)))
		return
	}
	h.put(w, r, func() error { return h.store.PutDatabase(spec) }, http.StatusCreated, spec.Name)
}

func (h *AdminHandler) UpdateDatabase(w http.ResponseWriter, r *http.Request) {
	var spec catalog.DatabaseSpec
	if !h.decode(w, r, &spec) {
		return
	}
	spec.Name = chi.URLParam(r, "name")
	h.put(w, r, func() error { return h.store.PutDatabase(spec) }, http.StatusOK, spec.Name)
}

func (h *AdminHandler) DeleteDatabase(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	dependents, err := h.store.CountQueriesByDatabase(name)
	if err != nil {
		common.RespondError(w, r, h.logger, storeError(err))
		return
	}
	if dependents > 0 {
		common.RespondError(w, r, h.logger, apperrors.NewConflict(
			fmt.Sprintf("database '%s' is referenced by %d query(ies)", name, dependents)))
		return
	}
	h.delete(w, r, name, func() (bool, error) { return h.store.DeleteDatabase(name) })
}

// ---- queries ----

func (h *AdminHandler) GetQuery(w http.ResponseWriter, r *http.Request) {
	spec, err := h.store.Query(chi.URLParam(r, "name"))
	if err != nil {
		common.RespondError(w, r, h.logger, storeError(err))
		return
	}
	common.RespondJSON(w, http.StatusOK, spec)
}

func (h *AdminHandler) ListQueries(w http.ResponseWriter, r *http.Request) {
	if db := r.URL.Query().Get("database"); db != "" {
		list, err := h.store.QueriesByDatabase(db)
		if err != nil {
			common.RespondError(w, r, h.logger, storeError(err))
			return
		}
		common.RespondJSON(w, http.StatusOK, map[string]interface{}{"queries": list})
		return
	}
	snap, err := h.store.LoadAll()
	if err != nil {
		common.RespondError(w, r, h.logger, storeError(err))
		return
	}
	out := make([]catalog.QuerySpec, 0, len(snap.Queries))
	for _, q := range snap.Queries {
		out = append(out, q)
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{"queries": out})
}

func (h *AdminHandler) CreateQuery(w http.ResponseWriter, r *http.Request) {
	var spec catalog.QuerySpec
	if !h.decode(w, r, &spec) {
		return
	}
	exists, err := h.store.QueryExists(spec.Name)
	if err != nil {
		common.RespondError(w, r, h.logger, storeError(err))
		return
	}
	if exists {
		common.RespondError(w, r, h.logger, apperrors.NewConflict(fmt.Sprintf("query '%s' already exists", spec.Name)))
		return
	}
	h.put(w, r, func() error { return h.store.PutQuery(spec) }, http.StatusCreated, spec.Name)
}

func (h *AdminHandler) UpdateQuery(w http.ResponseWriter, r *http.Request) {
	var spec catalog.QuerySpec
	if !h.decode(w, r, &spec) {
		return
	}
	spec.Name = chi.URLParam(r, "name")
	h.put(w, r, func() error { return h.store.PutQuery(spec) }, http.StatusOK, spec.Name)
}

func (h *AdminHandler) DeleteQuery(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	dependents, err := h.store.CountEndpointsByQuery(name)
	if err != nil {
		common.RespondError(w, r, h.logger, storeError(err))
		return
	}
	if dependents > 0 {
		common.RespondError(w, r, h.logger, apperrors.NewConflict(
			fmt.Sprintf("query '%s' is referenced by %d endpoint(s)", name, dependents)))
		return
	}
	h.delete(w, r, name, func() (bool, error) { return h.store.DeleteQuery(name) })
}

// ---- endpoints ----

func (h *AdminHandler) GetEndpoint(w http.ResponseWriter, r *http.Request) {
	spec, err := h.store.Endpoint(chi.URLParam(r, "name"))
	if err != nil {
		common.RespondError(w, r, h.logger, storeError(err))
		return
	}
	common.RespondJSON(w, http.StatusOK, spec)
}

func (h *AdminHandler) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	if q := r.URL.Query().Get("query"); q != "" {
		list, err := h.store.EndpointsByQuery(q)
		if err != nil {
			common.RespondError(w, r, h.logger, storeError(err))
			return
		}
		common.RespondJSON(w, http.StatusOK, map[string]interface{}{"endpoints": list})
		return
	}
	snap, err := h.store.LoadAll()
	if err != nil {
		common.RespondError(w, r, h.logger, storeError(err))
		return
	}
	out := make([]catalog.EndpointSpec, 0, len(snap.Endpoints))
	for _, e := range snap.Endpoints {
		out = append(out, e)
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{"endpoints": out})
}

func (h *AdminHandler) CreateEndpoint(w http.ResponseWriter, r *http.Request) {
	var spec catalog.EndpointSpec
	if !h.decode(w, r, &spec) {
		return
	}
	exists, err := h.store.EndpointExists(spec.Name)
	if err != nil {
		common.RespondError(w, r, h.logger, storeError(err))
		return
	}
	if exists {
		common.RespondError(w, r, h.logger, apperrors.NewConflict(fmt.Sprintf("endpoint '%s' already exists", spec.Name)))
		return
	}
	h.put(w, r, func() error { return h.store.PutEndpoint(spec) }, http.StatusCreated, spec.Name)
}

func (h *AdminHandler) UpdateEndpoint(w http.ResponseWriter, r *http.Request) {
	var spec catalog.EndpointSpec
	if !h.decode(w, r, &spec) {
		return
	}
	spec.Name = chi.URLParam(r, "name")
	h.put(w, r, func() error { return h.store.PutEndpoint(spec) }, http.StatusOK, spec.Name)
}

func (h *AdminHandler) DeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h.delete(w, r, name, func() (bool, error) { return h.store.DeleteEndpoint(name) })
}

// ---- shared plumbing ----

func (h *AdminHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := common.ParseJSONBody(r, v, maxBodyBytes); err != nil {
		common.RespondError(w, r, h.logger, apperrors.NewBadRequest(fmt.Sprintf("invalid request body: %v", err)))
		return false
	}
	return true
}

func (h *AdminHandler) put(w http.ResponseWriter, r *http.Request, save func() error, okStatus int, name string) {
	if err := save(); err != nil {
		common.RespondError(w, r, h.logger, storeError(err))
		return
	}
	if err := h.reload(r.Context()); err != nil {
		common.RespondError(w, r, h.logger, apperrors.Wrap(err, "saved but reload failed"))
		return
	}
	common.RespondJSON(w, okStatus, map[string]interface{}{"name": name})
}

func (h *AdminHandler) delete(w http.ResponseWriter, r *http.Request, name string, remove func() (bool, error)) {
	deleted, err := remove()
	if err != nil {
		common.RespondError(w, r, h.logger, storeError(err))
		return
	}
	if !deleted {
		common.RespondError(w, r, h.logger, apperrors.NewNotFound(fmt.Sprintf("'%s' not found", name)))
		return
	}
	if err := h.reload(r.Context()); err != nil {
		common.RespondError(w, r, h.logger, apperrors.Wrap(err, "deleted but reload failed"))
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{"name": name, "deleted": true})
}

// storeError maps store failures onto the HTTP error taxonomy.
func storeError(err error) error {
	switch {
	case catalog.IsStoreErrorKind(err, catalog.StoreErrNotFound):
		return apperrors.NewNotFound(err.Error())
	case catalog.IsStoreErrorKind(err, catalog.StoreErrConflict):
		return apperrors.NewConflict(err.Error())
	case catalog.IsStoreErrorKind(err, catalog.StoreErrInvalid):
		return apperrors.NewBadRequest(err.Error())
	default:
		return apperrors.NewInternal("catalogue store failure").WithCause(err)
	}
}
