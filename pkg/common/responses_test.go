package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "querygate/pkg/errors"
)

func TestRespondJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondJSON(rec, http.StatusCreated, map[string]string{"name": "x"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"name":"x"}`, rec.Body.String())
}

func TestRespondErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/users/7", nil)

	RespondError(rec, req, zap.NewNop(), apperrors.NewBadRequest("Required parameter missing: id"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, env.Error)
	assert.Equal(t, "BAD_REQUEST", env.ErrorCode)
	assert.Equal(t, "Required parameter missing: id", env.Message)
	assert.Equal(t, "/api/users/7", env.Path)

	parsed, err := time.Parse(TimestampLayout, env.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), parsed, time.Minute)
}

func TestRespondErrorUnknownBecomesInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/x", nil)

	RespondError(rec, req, zap.NewNop(), errors.New("driver blew up"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "INTERNAL_ERROR", env.ErrorCode)
}

func TestParseJSONBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/x", nil)
	req.Body = http.NoBody
	var out map[string]interface{}
	assert.Error(t, ParseJSONBody(req, &out, 16))
}
