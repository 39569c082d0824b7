package services

import (
	"errors"

	"github.com/suryadevkumar/SheSecure-sub000/internal/registry"
	ws "github.com/suryadevkumar/SheSecure-sub000/internal/websocket"
)

// CoordError is an error in the session coordination layer, carrying a
// stable code reported to the originating connection via the error event.
// It never crashes the coordinator or affects other sessions.
type CoordError struct {
	Code    string
	Message string
}

func (e *CoordError) Error() string {
	return e.Message
}

// NotFound builds a SessionNotFound error
func NotFound(message string) *CoordError {
	return &CoordError{Code: ws.CodeSessionNotFound, Message: message}
}

// InvalidTransition builds an error for an operation not legal in the
// current state.
func InvalidTransition(message string) *CoordError {
	return &CoordError{Code: ws.CodeInvalidTransition, Message: message}
}

// Invalid builds a validation error
func Invalid(message string) *CoordError {
	return &CoordError{Code: ws.CodeValidationError, Message: message}
}

// Unauthorized builds an actor/role mismatch error
func Unauthorized(message string) *CoordError {
	return &CoordError{Code: ws.CodeUnauthorized, Message: message}
}

// ErrorCode extracts the stable code from an error, mapping registry
// misses to SessionNotFound.
func ErrorCode(err error) string {
	var coordErr *CoordError
	if errors.As(err, &coordErr) {
		return coordErr.Code
	}
	if errors.Is(err, registry.ErrSessionNotFound) {
		return ws.CodeSessionNotFound
	}
	return ws.CodeValidationError
}
