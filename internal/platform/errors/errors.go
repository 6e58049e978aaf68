// Package errors provides the structured error taxonomy shared by the
// WebSocket protocol layer and the HTTP surface.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the category of an error. It decides how the error surfaces:
// as a unicast protocol message, an HTTP status, or a closed connection.
type Kind string

const (
	// KindProtocol is a malformed or unknown inbound message. Recovered locally.
	KindProtocol Kind = "protocol"
	// KindAuth is an invalid or expired credential.
	KindAuth Kind = "auth"
	// KindTransport is a read or write failure on a connection. Fatal to that connection.
	KindTransport Kind = "transport"
	// KindValidation is invalid HTTP input (HTTP 400).
	KindValidation Kind = "validation"
	// KindNotFound is a missing resource (HTTP 404).
	KindNotFound Kind = "not_found"
	// KindUnavailable is a temporarily refused request, e.g. connection limits (HTTP 503).
	KindUnavailable Kind = "unavailable"
	// KindInternal is a server-side failure (HTTP 500).
	KindInternal Kind = "internal"
)

// CodeInvalidMessage is the wire code sent to clients for protocol errors.
const CodeInvalidMessage = "INVALID_MESSAGE"

// Error is a structured error with a kind, message, optional cause and context fields.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Code returns the client-facing error code for this kind.
func (e *Error) Code() string {
	switch e.Kind {
	case KindProtocol, KindValidation:
		return CodeInvalidMessage
	case KindAuth:
		return "UNAUTHORIZED"
	case KindNotFound:
		return "NOT_FOUND"
	case KindUnavailable:
		return "UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

// HTTPStatus returns the HTTP status code for this kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindProtocol, KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// ProtocolError creates an error for a malformed inbound message.
func ProtocolError(message string) *Error {
	return newError(KindProtocol, message, nil)
}

// AuthError creates an authentication failure.
func AuthError(message string, cause error) *Error {
	return newError(KindAuth, message, cause)
}

// TransportError wraps a connection read/write failure.
func TransportError(message string, cause error) *Error {
	return newError(KindTransport, message, cause)
}

// ValidationError creates an HTTP input validation error.
func ValidationError(message string) *Error {
	return newError(KindValidation, message, nil)
}

// NotFoundError creates a not-found error.
func NotFoundError(message string) *Error {
	return newError(KindNotFound, message, nil)
}

// UnavailableError creates an error for a request refused due to capacity.
func UnavailableError(message string) *Error {
	return newError(KindUnavailable, message, nil)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *Error {
	return newError(KindInternal, message, cause)
}

// WithField adds a context field (chainable).
func (e *Error) WithField(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse is the JSON body sent by the HTTP surface.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Kind    Kind           `json:"kind"`
	Context map[string]any `json:"context,omitempty"`
}

// ToResponse converts an Error to its JSON body.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Code:    e.Code(),
		Kind:    e.Kind,
		Context: e.Context,
	}
}

// IsKind reports whether err is a structured error of the given kind.
func IsKind(err error, kind Kind) bool {
	var structuredErr *Error
	return errors.As(err, &structuredErr) && structuredErr.Kind == kind
}

// AsStructuredError converts any error into a structured Error.
// Unstructured errors become internal errors.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return InternalError("internal server error", err)
}
