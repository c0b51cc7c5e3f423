package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(ErrorCodeVector, "saving vector index", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrorCodeVector, Code(err))
	assert.Contains(t, err.Error(), "disk full")
}

func TestWrapKeepsExistingClassification(t *testing.T) {
	inner := NewNotFoundError("resource", 42)
	err := Wrap(ErrorCodeRelational, "loading resource", fmt.Errorf("query: %w", inner))

	assert.Equal(t, ErrorCodeNotFound, Code(err))
	assert.True(t, IsNotFound(err))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, ErrorCodeInternal, Code(errors.New("boom")))
}

func TestToJSONRPCError(t *testing.T) {
	tests := []struct {
		err  *StandardError
		code int
	}{
		{NewRequiredFieldError("file_name"), -32602},
		{NewNotFoundError("todo", 7), -32001},
		{NewUnavailableError("graph"), -32003},
		{New(ErrorCodeTimeout, "operation timed out", nil), -32004},
		{New(ErrorCodeRelational, "constraint violated", nil), -32603},
	}
	for _, tt := range tests {
		resp := tt.err.ToJSONRPCError(1)
		require.NotNil(t, resp.Error)
		assert.Equal(t, tt.code, resp.Error.Code, tt.err.ErrorInfo.Code)
		assert.Equal(t, "2.0", resp.JSONRPC)
	}
}

func TestToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, NewValidationError("k", "bad", nil).ToHTTPStatus())
	assert.Equal(t, http.StatusNotFound, NewNotFoundError("chat", 1).ToHTTPStatus())
	assert.Equal(t, http.StatusServiceUnavailable, ErrGraphUnavailable.ToHTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, New(ErrorCodeCache, "redis down", nil).ToHTTPStatus())
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewUnavailableError("cache"))
	assert.ErrorIs(t, err, ErrCacheUnavailable)
	assert.True(t, IsStorageError(New(ErrorCodeGraph, "merge failed", nil)))
	assert.False(t, IsStorageError(ErrQueryRequired))
}
