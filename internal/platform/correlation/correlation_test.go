package correlation

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_Unique(t *testing.T) {
	ids := make(map[string]struct{}, 100)
	for range 100 {
		ids[NewID()] = struct{}{}
	}
	assert.Len(t, ids, 100)
}

func TestID_Roundtrip(t *testing.T) {
	ctx := WithID(context.Background(), "session-1")
	id, ok := ID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "session-1", id)

	_, ok = ID(context.Background())
	assert.False(t, ok)

	_, ok = ID(WithID(context.Background(), ""))
	assert.False(t, ok)
}

func TestHandler_AddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil)))

	logger.InfoContext(WithID(context.Background(), "abc"), "client subscribed", "channels", 2)

	output := buf.String()
	assert.Contains(t, output, "correlation_id=abc")
	assert.Contains(t, output, "channels=2")
}

func TestHandler_NoCorrelationID_WhenMissing(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "feed tick")

	assert.NotContains(t, buf.String(), "correlation_id")
}

func TestHandler_PreservesAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewJSONHandler(&buf, nil))).
		With("component", "feed").
		WithGroup("tick")

	logger.InfoContext(WithID(context.Background(), "xyz"), "published", "symbols", 3)

	output := buf.String()
	assert.Contains(t, output, `"component":"feed"`)
	assert.Contains(t, output, `"symbols":3`)
	assert.Contains(t, output, `"correlation_id":"xyz"`)
}

func TestMiddleware(t *testing.T) {
	e := echo.New()

	var seen string
	handler := Middleware()(func(c echo.Context) error {
		seen, _ = ID(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	t.Run("generates id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		require.NoError(t, handler(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))
	})

	t.Run("honours caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, "from-gateway")
		rec := httptest.NewRecorder()
		require.NoError(t, handler(e.NewContext(req, rec)))
		assert.Equal(t, "from-gateway", seen)
		assert.Equal(t, "from-gateway", rec.Header().Get(HeaderRequestID))
	})
}
