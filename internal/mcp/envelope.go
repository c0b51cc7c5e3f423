package mcp

import (
	"errors"

	"ltmc/internal/apperrors"
)

// Error kinds surfaced in tool responses. Stable strings; clients
// retry on Timeout and Unavailable.
const (
	kindValidation    = "ValidationError"
	kindNotFound      = "NotFound"
	kindAlreadyExists = "AlreadyExists"
	kindStorage       = "StorageError"
	kindTimeout       = "Timeout"
	kindUnavailable   = "Unavailable"
	kindConfig        = "ConfigError"
	kindSchema        = "SchemaError"
	kindInternal      = "Internal"
)

// envelope shapes every tool response: {success:true, result} on the
// happy path, {success:false, error:{kind, message, details?}}
// otherwise. Results are always objects so clients can validate shape.
func successEnvelope(result interface{}) map[string]interface{} {
	return map[string]interface{}{
		"success": true,
		"result":  result,
	}
}

func errorEnvelope(err error) map[string]interface{} {
	kind, details := classify(err)
	e := map[string]interface{}{
		"kind":    kind,
		"message": errorMessage(err),
	}
	if len(details) > 0 {
		e["details"] = details
	}
	if kind == kindTimeout || kind == kindUnavailable {
		e["retry_possible"] = true
	}
	return map[string]interface{}{
		"success": false,
		"error":   e,
	}
}

func classify(err error) (string, map[string]interface{}) {
	switch apperrors.Code(err) {
	case apperrors.ErrorCodeValidation, apperrors.ErrorCodeRequiredField, apperrors.ErrorCodeInvalidValue:
		return kindValidation, nil
	case apperrors.ErrorCodeNotFound:
		return kindNotFound, nil
	case apperrors.ErrorCodeAlreadyExists:
		return kindAlreadyExists, nil
	case apperrors.ErrorCodeRelational:
		return kindStorage, map[string]interface{}{"backend": "relational"}
	case apperrors.ErrorCodeVector:
		return kindStorage, map[string]interface{}{"backend": "vector"}
	case apperrors.ErrorCodeGraph:
		return kindStorage, map[string]interface{}{"backend": "graph"}
	case apperrors.ErrorCodeCache:
		return kindStorage, map[string]interface{}{"backend": "cache"}
	case apperrors.ErrorCodeEmbedding:
		return kindStorage, map[string]interface{}{"backend": "embedding"}
	case apperrors.ErrorCodeTimeout:
		return kindTimeout, nil
	case apperrors.ErrorCodeUnavailable:
		return kindUnavailable, nil
	case apperrors.ErrorCodeConfig:
		return kindConfig, nil
	case apperrors.ErrorCodeSchema:
		return kindSchema, nil
	default:
		return kindInternal, nil
	}
}

// errorMessage surfaces only the classified message, never the cause
// chain, so driver internals and source paths do not leak to clients.
func errorMessage(err error) string {
	var std *apperrors.StandardError
	if errors.As(err, &std) {
		return std.ErrorInfo.Message
	}
	return "internal error"
}
