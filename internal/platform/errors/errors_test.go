package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocolError(t *testing.T) {
	err := ProtocolError("unknown message type")

	assert.Equal(t, KindProtocol, err.Kind)
	assert.Equal(t, CodeInvalidMessage, err.Code())
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
	assert.NotNil(t, err.Context)
	assert.Contains(t, err.Error(), "protocol")
	assert.Contains(t, err.Error(), "unknown message type")
}

func TestKindMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		status int
		code   string
	}{
		{"validation", ValidationError("bad"), http.StatusBadRequest, CodeInvalidMessage},
		{"auth", AuthError("expired", nil), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"not found", NotFoundError("missing"), http.StatusNotFound, "NOT_FOUND"},
		{"unavailable", UnavailableError("full"), http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"internal", InternalError("boom", nil), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"transport", TransportError("reset", nil), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.HTTPStatus())
			assert.Equal(t, tt.code, tt.err.Code())
		})
	}
}

func TestErrorWrapsCause(t *testing.T) {
	cause := fmt.Errorf("connection reset by peer")
	err := TransportError("write failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.NotContains(t, InternalError("no cause", nil).Error(), "<nil>")
}

func TestWithField(t *testing.T) {
	err := ValidationError("invalid event").
		WithField("type", "ticker").
		WithField("size", 42)

	assert.Equal(t, "ticker", err.Context["type"])
	assert.Equal(t, 42, err.Context["size"])

	resp := err.ToResponse()
	assert.Equal(t, "invalid event", resp.Error)
	assert.Equal(t, CodeInvalidMessage, resp.Code)
	assert.Equal(t, KindValidation, resp.Kind)
	assert.Equal(t, "ticker", resp.Context["type"])
}

func TestIsKind(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", AuthError("bad token", nil))

	assert.True(t, IsKind(wrapped, KindAuth))
	assert.False(t, IsKind(wrapped, KindProtocol))
	assert.False(t, IsKind(errors.New("plain"), KindAuth))
	assert.False(t, IsKind(nil, KindAuth))
}

func TestAsStructuredError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, AsStructuredError(nil))
	})

	t.Run("structured passes through", func(t *testing.T) {
		orig := NotFoundError("nope")
		wrapped := fmt.Errorf("ctx: %w", orig)
		assert.Same(t, orig, AsStructuredError(wrapped))
	})

	t.Run("plain becomes internal", func(t *testing.T) {
		plain := errors.New("disk on fire")
		got := AsStructuredError(plain)
		require.NotNil(t, got)
		assert.Equal(t, KindInternal, got.Kind)
		assert.Equal(t, "internal server error", got.Message)
		assert.ErrorIs(t, got, plain)
	})
}
