package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "bad name", http.StatusBadRequest)
	assert.Equal(t, "INVALID_INPUT: bad name", err.Error())

	wrapped := WrapError(errors.New("connection refused"), ErrCodeDatabase, "insert room", http.StatusInternalServerError)
	assert.Contains(t, wrapped.Error(), "connection refused")
	assert.ErrorIs(t, wrapped, wrapped.Cause)
}

func TestAppError_WithContext(t *testing.T) {
	err := NewInvalidInputError("bad").WithContext("field", "name").WithContext("max", 64)
	assert.Equal(t, "name", err.Context["field"])
	assert.Equal(t, 64, err.Context["max"])
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   ErrorCode
		status int
	}{
		{"parse", NewParseError("kpofkagt"), ErrCodeParse, http.StatusBadRequest},
		{"not found", NewNotFoundError("room"), ErrCodeNotFound, http.StatusNotFound},
		{"database", NewDatabaseError(errors.New("down")), ErrCodeDatabase, http.StatusInternalServerError},
		{"unauthorized", NewUnauthorizedError("no token"), ErrCodeUnauthorized, http.StatusUnauthorized},
		{"rate limit", NewRateLimitError(), ErrCodeRateLimit, http.StatusTooManyRequests},
		{"unavailable", NewServiceUnavailableError("not ready"), ErrCodeServiceUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
		})
	}

	assert.Equal(t, "kpofkagt", NewParseError("kpofkagt").Context["reference"])
}

func TestGetAppError(t *testing.T) {
	appErr := NewNotFoundError("room")

	assert.Same(t, appErr, GetAppError(appErr))

	wrapped := fmt.Errorf("handler: %w", appErr)
	got := GetAppError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, ErrCodeNotFound, got.Code)
	assert.True(t, HasCode(wrapped, ErrCodeNotFound))

	assert.Nil(t, GetAppError(errors.New("plain")))
	assert.Nil(t, GetAppError(nil))
}
