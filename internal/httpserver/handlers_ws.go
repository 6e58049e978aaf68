package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tyeom/zeroquant-sub005/internal/connection"
	"github.com/tyeom/zeroquant-sub005/internal/metrics"
	"github.com/tyeom/zeroquant-sub005/internal/platform/version"
)

// handleWebSocket upgrades the request and runs the session on the
// handler goroutine until it ends.
func (s *Server) handleWebSocket(c echo.Context) error {
	r := c.Request()

	if s.sessions.Err() != nil {
		metrics.WebSocketConnectionsRejected.WithLabelValues("shutting_down").Inc()
		return echo.NewHTTPError(http.StatusServiceUnavailable, "server shutting down")
	}

	if !s.upgrader.CheckOrigin(r) {
		metrics.WebSocketConnectionsRejected.WithLabelValues("origin").Inc()
		return echo.NewHTTPError(http.StatusForbidden, "origin not allowed")
	}

	ip := c.RealIP()
	ok, reason := s.limits.Acquire(ip)
	if !ok {
		metrics.WebSocketConnectionsRejected.WithLabelValues(string(reason)).Inc()
		s.logger.WarnContext(r.Context(), "WebSocket connection rejected", "ip", ip, "reason", reason)
		status := http.StatusTooManyRequests
		if reason == LimitReasonGlobal {
			status = http.StatusServiceUnavailable
		}
		return echo.NewHTTPError(status, "connection limit exceeded")
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error response.
		metrics.WebSocketConnectionsTotal.WithLabelValues("upgrade_failed").Inc()
		s.logger.DebugContext(r.Context(), "WebSocket upgrade failed", "ip", ip, "error", err)
		return nil
	}

	s.active.Add(1)
	defer s.active.Done()

	session := connection.New(conn, s.registry, s.verifier,
		connection.WithClock(s.clock),
		connection.WithVersion(version.Get().String()),
		connection.WithLogger(s.logger),
	)
	if err := session.Serve(s.sessions); err != nil {
		s.logger.Debug("WebSocket session ended with error", "session_id", session.ID(), "ip", ip, "error", err)
	}
	return nil
}
