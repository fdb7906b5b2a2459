package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsCarryStatus(t *testing.T) {
	tests := []struct {
		err    *AppError
		typ    ErrorType
		status int
	}{
		{NewBadRequest("x"), ErrorTypeBadRequest, http.StatusBadRequest},
		{NewNotFound("x"), ErrorTypeNotFound, http.StatusNotFound},
		{NewMethodNotAllowed("x"), ErrorTypeMethodNotAllowed, http.StatusMethodNotAllowed},
		{NewConflict("x"), ErrorTypeConflict, http.StatusConflict},
		{NewDatabaseUnavailable("db", "down"), ErrorTypeDatabaseUnavailable, http.StatusServiceUnavailable},
		{NewDatabaseUnknown("db"), ErrorTypeInternal, http.StatusInternalServerError},
		{NewInternal("x"), ErrorTypeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.typ, tt.err.Type)
		assert.Equal(t, tt.status, tt.err.HTTPStatus)
	}
}

func TestDatabaseUnavailableMessage(t *testing.T) {
	err := NewDatabaseUnavailable("usersdb", "driver unavailable: oracle")
	assert.Equal(t, "database 'usersdb' unavailable: driver unavailable: oracle", err.Message)
	assert.True(t, IsDatabaseUnavailable(err))
}

func TestGetAppErrorThroughWrapping(t *testing.T) {
	base := NewNotFound("gone")
	wrapped := fmt.Errorf("handler: %w", base)

	got := GetAppError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, ErrorTypeNotFound, got.Type)
	assert.True(t, IsNotFound(wrapped))
	assert.Nil(t, GetAppError(errors.New("plain")))
}

func TestWithCauseUnwraps(t *testing.T) {
	cause := errors.New("socket closed")
	err := NewInternal("query failed").WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "caused by: socket closed")
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "nothing"))

	appErr := Wrap(NewBadRequest("bad id"), "binding")
	require.True(t, IsBadRequest(appErr))
	assert.Contains(t, appErr.Error(), "binding: bad id")

	plain := Wrap(errors.New("boom"), "saving")
	assert.True(t, IsInternal(plain))
}
