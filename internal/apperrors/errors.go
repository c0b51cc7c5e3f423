// Package apperrors provides standardized error handling across the
// stdio and HTTP protocols.
package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fredcamaral/gomcp-sdk/protocol"
)

// ErrorCode represents semantic error codes for consistent error handling
type ErrorCode string

const (
	// Startup errors
	ErrorCodeConfig ErrorCode = "CONFIG_ERROR"
	ErrorCodeSchema ErrorCode = "SCHEMA_ERROR"

	// Validation errors
	ErrorCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrorCodeRequiredField ErrorCode = "REQUIRED_FIELD"
	ErrorCodeInvalidValue  ErrorCode = "INVALID_VALUE"

	// Resource errors
	ErrorCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrorCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Backend errors, one per store
	ErrorCodeRelational ErrorCode = "RELATIONAL_STORE_ERROR"
	ErrorCodeVector     ErrorCode = "VECTOR_STORE_ERROR"
	ErrorCodeGraph      ErrorCode = "GRAPH_STORE_ERROR"
	ErrorCodeCache      ErrorCode = "CACHE_STORE_ERROR"

	// System errors
	ErrorCodeEmbedding   ErrorCode = "EMBEDDING_ERROR"
	ErrorCodeTimeout     ErrorCode = "TIMEOUT"
	ErrorCodeUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrorCodeInternal    ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents the unified error structure across all protocols
type StandardError struct {
	ErrorInfo ErrorDetails `json:"error"`
	cause     error
}

// Error implements the Go error interface
func (e *StandardError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.ErrorInfo.Message, e.cause)
	}
	return e.ErrorInfo.Message
}

// Unwrap exposes the wrapped cause to errors.Is and errors.As.
func (e *StandardError) Unwrap() error { return e.cause }

// Is matches two StandardErrors by code.
func (e *StandardError) Is(target error) bool {
	var se *StandardError
	if errors.As(target, &se) {
		return se.ErrorInfo.Code == e.ErrorInfo.Code
	}
	return false
}

// ErrorDetails contains the detailed error information
type ErrorDetails struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
}

// ValidationDetail provides specific validation error information
type ValidationDetail struct {
	Field  string      `json:"field"`
	Reason string      `json:"reason"`
	Value  interface{} `json:"value,omitempty"`
}

// New creates a new standardized error
func New(code ErrorCode, message string, details interface{}) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// Wrap creates a standardized error around an underlying cause.
func Wrap(code ErrorCode, message string, cause error) *StandardError {
	var se *StandardError
	if errors.As(cause, &se) {
		// Do not bury an already classified error under a generic code.
		return se
	}
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    code,
			Message: message,
		},
		cause: cause,
	}
}

// NewValidationError creates a validation error with field details
func NewValidationError(field, reason string, value interface{}) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    ErrorCodeValidation,
			Message: fmt.Sprintf("Validation failed for field '%s': %s", field, reason),
			Details: ValidationDetail{
				Field:  field,
				Reason: reason,
				Value:  value,
			},
		},
	}
}

// NewRequiredFieldError creates an error for missing required fields
func NewRequiredFieldError(field string) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    ErrorCodeRequiredField,
			Message: fmt.Sprintf("Required field '%s' is missing", field),
			Details: ValidationDetail{
				Field:  field,
				Reason: "missing_required_field",
			},
		},
	}
}

// NewNotFoundError creates a not-found error for an entity and id.
func NewNotFoundError(entity string, id interface{}) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    ErrorCodeNotFound,
			Message: fmt.Sprintf("%s not found: %v", entity, id),
			Details: map[string]interface{}{"entity": entity, "id": id},
		},
	}
}

// NewUnavailableError marks a backend as absent or unreachable.
func NewUnavailableError(backend string) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    ErrorCodeUnavailable,
			Message: fmt.Sprintf("%s backend is not available", backend),
			Details: map[string]interface{}{"backend": backend},
		},
	}
}

// WithTraceID adds a trace ID to the error for debugging
func (e *StandardError) WithTraceID(traceID string) *StandardError {
	e.ErrorInfo.TraceID = traceID
	return e
}

// Code extracts the semantic code from any error. Unclassified errors
// report as internal.
func Code(err error) ErrorCode {
	var se *StandardError
	if errors.As(err, &se) {
		return se.ErrorInfo.Code
	}
	return ErrorCodeInternal
}

// ToJSONRPCError converts StandardError to JSON-RPC error format
func (e *StandardError) ToJSONRPCError(id interface{}) *protocol.JSONRPCResponse {
	var rpcCode int
	switch e.ErrorInfo.Code {
	case ErrorCodeValidation, ErrorCodeRequiredField, ErrorCodeInvalidValue:
		rpcCode = -32602 // Invalid params
	case ErrorCodeNotFound:
		rpcCode = -32001
	case ErrorCodeAlreadyExists:
		rpcCode = -32002
	case ErrorCodeUnavailable:
		rpcCode = -32003
	case ErrorCodeTimeout:
		rpcCode = -32004
	default:
		rpcCode = -32603 // Internal error
	}

	return &protocol.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &protocol.JSONRPCError{
			Code:    rpcCode,
			Message: e.ErrorInfo.Message,
			Data:    e,
		},
	}
}

// ToHTTPStatus maps StandardError to appropriate HTTP status code
func (e *StandardError) ToHTTPStatus() int {
	switch e.ErrorInfo.Code {
	case ErrorCodeValidation, ErrorCodeRequiredField, ErrorCodeInvalidValue:
		return http.StatusBadRequest
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeAlreadyExists:
		return http.StatusConflict
	case ErrorCodeUnavailable:
		return http.StatusServiceUnavailable
	case ErrorCodeTimeout:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts StandardError to JSON bytes
func (e *StandardError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WriteHTTPError writes StandardError as HTTP response
func (e *StandardError) WriteHTTPError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if e.ErrorInfo.TraceID != "" {
		w.Header().Set("X-Trace-ID", e.ErrorInfo.TraceID)
	}
	w.WriteHeader(e.ToHTTPStatus())
	jsonBytes, _ := e.ToJSON()
	_, _ = w.Write(jsonBytes)
}

// Predefined common errors for convenience
var (
	ErrFileNameRequired = NewRequiredFieldError("file_name")
	ErrContentRequired  = NewRequiredFieldError("content")
	ErrQueryRequired    = NewRequiredFieldError("query")
	ErrMessageRequired  = NewRequiredFieldError("message")
	ErrTitleRequired    = NewRequiredFieldError("title")

	ErrGraphUnavailable = NewUnavailableError("graph")
	ErrCacheUnavailable = NewUnavailableError("cache")
)

// IsValidationError checks if the error is a validation-related error
func IsValidationError(err error) bool {
	switch Code(err) {
	case ErrorCodeValidation, ErrorCodeRequiredField, ErrorCodeInvalidValue:
		return true
	}
	return false
}

// IsNotFound checks if the error is a not-found error.
func IsNotFound(err error) bool {
	return Code(err) == ErrorCodeNotFound
}

// IsStorageError checks if the error came from one of the four stores.
func IsStorageError(err error) bool {
	switch Code(err) {
	case ErrorCodeRelational, ErrorCodeVector, ErrorCodeGraph, ErrorCodeCache:
		return true
	}
	return false
}
