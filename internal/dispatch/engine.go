package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"querygate/internal/catalog"
	"querygate/pkg/common"
	apperrors "querygate/pkg/errors"
)

// asyncTimeout bounds detached request executions so shutdown can drain.
const asyncTimeout = 5 * time.Minute

// PagedResponse is the envelope for paginated endpoints.
type PagedResponse struct {
	Data          []Row `json:"data"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int64 `json:"totalPages"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

// AsyncAccepted is the 202 body for async submissions.
type AsyncAccepted struct {
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
	Endpoint  string `json:"endpoint"`
	Timestamp int64  `json:"timestamp"`
}

// Engine resolves configured endpoints to queries and shapes responses.
// It reads the catalogue through the holder, so a snapshot swap rebinds
// every handler without restarting.
type Engine struct {
	holder   *catalog.Holder
	executor *Executor
	logger   *zap.Logger

	async sync.WaitGroup
}

// NewEngine creates a dispatch engine.
func NewEngine(holder *catalog.Holder, executor *Executor, logger *zap.Logger) *Engine {
	return &Engine{holder: holder, executor: executor, logger: logger}
}

// Handler returns the HTTP handler for one configured endpoint. The
// endpoint is resolved by name at request time so reloaded specs take
// effect immediately.
func (e *Engine) Handler(endpointName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := e.holder.Current()
		ep, ok := snap.Endpoint(endpointName)
		if !ok {
			common.RespondError(w, r, e.logger, apperrors.NewNotFound(fmt.Sprintf("endpoint '%s' not found", endpointName)))
			return
		}

		params := ExtractParams(r)

		if isAsync(params) {
			e.submitAsync(snap, ep, params)
			common.RespondJSON(w, http.StatusAccepted, AsyncAccepted{
				Message:   "Request accepted for asynchronous processing",
				RequestID: uuid.NewString(),
				Endpoint:  ep.Name,
				Timestamp: time.Now().UnixMilli(),
			})
			return
		}

		result, err := e.dispatch(r.Context(), snap, ep, params)
		if err != nil {
			common.RespondError(w, r, e.logger, err)
			return
		}
		common.RespondJSON(w, http.StatusOK, result)
	}
}

func isAsync(params map[string]interface{}) bool {
	v, ok := params[ParamAsync].(string)
	return ok && v == "true"
}

// submitAsync forks the pipeline. Fire-and-forget for the client: the result
// and any error are logged and discarded. Shutdown waits for these through
// Drain.
func (e *Engine) submitAsync(snap *catalog.Snapshot, ep catalog.EndpointSpec, params map[string]interface{}) {
	e.async.Add(1)
	go func() {
		defer e.async.Done()
		ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				e.logger.Error("async dispatch panicked",
					zap.String("endpoint", ep.Name), zap.Any("panic", rec))
			}
		}()

		if _, err := e.dispatch(ctx, snap, ep, params); err != nil {
			e.logger.Warn("async dispatch failed",
				zap.String("endpoint", ep.Name), zap.Error(err))
			return
		}
		e.logger.Debug("async dispatch complete", zap.String("endpoint", ep.Name))
	}()
}

// Drain waits for detached async submissions, up to the context deadline.
func (e *Engine) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.async.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch runs the binder and executor for one request and shapes the
// result: paged envelope, single record, or data list.
func (e *Engine) dispatch(ctx context.Context, snap *catalog.Snapshot, ep catalog.EndpointSpec, params map[string]interface{}) (interface{}, error) {
	q, ok := snap.Query(ep.QueryName)
	if !ok {
		return nil, apperrors.NewInternal(fmt.Sprintf("endpoint '%s' references unknown query '%s'", ep.Name, ep.QueryName))
	}

	if ep.Paginated() {
		return e.dispatchPaged(ctx, snap, ep, q, params)
	}

	binds, err := Bind(q, params)
	if err != nil {
		return nil, err
	}
	rows, err := e.executor.Execute(ctx, q, binds)
	if err != nil {
		return nil, err
	}

	switch len(rows) {
	case 0:
		return nil, apperrors.NewNotFound("No data found")
	case 1:
		return rows[0], nil
	default:
		return map[string]interface{}{"data": rows}, nil
	}
}

func (e *Engine) dispatchPaged(ctx context.Context, snap *catalog.Snapshot, ep catalog.EndpointSpec, q catalog.QuerySpec, params map[string]interface{}) (interface{}, error) {
	page, err := intParam(params, ParamPage, 0)
	if err != nil {
		return nil, err
	}
	size, err := intParam(params, ParamSize, ep.Pagination.DefaultSize)
	if err != nil {
		return nil, err
	}
	if page < 0 {
		return nil, apperrors.NewBadRequest("page must not be negative")
	}
	if size <= 0 || size > ep.Pagination.MaxSize {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("size must be between 1 and %d", ep.Pagination.MaxSize))
	}

	// Synthetic limit/offset are bound only if the query declares them;
	// the engine never rewrites SQL.
	params["limit"] = strconv.Itoa(size)
	params["offset"] = strconv.Itoa(page * size)

	binds, err := Bind(q, params)
	if err != nil {
		return nil, err
	}
	rows, err := e.executor.Execute(ctx, q, binds)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []Row{}
	}

	total := int64(len(rows))
	if ep.CountQueryName != "" {
		countQuery, ok := snap.Query(ep.CountQueryName)
		if !ok {
			return nil, apperrors.NewInternal(fmt.Sprintf("endpoint '%s' references unknown count query '%s'", ep.Name, ep.CountQueryName))
		}

		// Count binds reuse the declared parameters minus pagination.
		countParams := make(map[string]interface{}, len(params))
		for k, v := range params {
			countParams[k] = v
		}
		delete(countParams, "limit")
		delete(countParams, "offset")

		countBinds, err := Bind(countQuery, countParams)
		if err != nil {
			return nil, err
		}
		total, err = e.executor.ExecuteCount(ctx, countQuery, countBinds)
		if err != nil {
			return nil, err
		}
	}

	totalPages := int64(0)
	if total > 0 {
		totalPages = (total + int64(size) - 1) / int64(size)
	}

	return PagedResponse{
		Data:          rows,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    totalPages,
		First:         page == 0,
		Last:          int64(page+1)*int64(size) >= total,
	}, nil
}

func intParam(params map[string]interface{}, name string, def int) (int, error) {
	v, ok := params[name]
	if !ok {
		return def, nil
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return def, nil
		}
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, apperrors.NewBadRequest(fmt.Sprintf("Invalid value '%s' for parameter '%s': expected integer", t, name))
		}
		return n, nil
	case float64:
		return int(t), nil
	case int:
		return t, nil
	}
	return 0, apperrors.NewBadRequest(fmt.Sprintf("Invalid value for parameter '%s': expected integer", name))
}
