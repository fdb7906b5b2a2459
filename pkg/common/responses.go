package common

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "querygate/pkg/errors"
)

// TimestampLayout is the wall-clock format used in every error envelope.
const TimestampLayout = "2006-01-02 15:04:05"

// ErrorEnvelope is the body of every non-2xx response. Only RespondError
// writes it; handlers never build error bodies themselves.
type ErrorEnvelope struct {
	Error     bool   `json:"error"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
	Path      string `json:"path"`
	Timestamp string `json:"timestamp"`
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// RespondError maps an error to its HTTP status and writes the error
// envelope. Unrecognised errors are treated as internal.
func RespondError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		appErr = apperrors.NewInternal("unexpected error").WithCause(err)
	}

	if appErr.HTTPStatus >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	RespondJSON(w, appErr.HTTPStatus, ErrorEnvelope{
		Error:     true,
		ErrorCode: string(appErr.Type),
		Message:   appErr.Message,
		Path:      r.URL.Path,
		Timestamp: time.Now().Format(TimestampLayout),
	})
}

// ParseJSONBody parses a JSON request body with a size limit
func ParseJSONBody(r *http.Request, v interface{}, maxBytes int64) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	return decoder.Decode(v)
}
