package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tyeom/zeroquant-sub005/internal/broadcast"
	apperrors "github.com/tyeom/zeroquant-sub005/internal/platform/errors"
	"github.com/tyeom/zeroquant-sub005/internal/protocol"
)

const contextKeyUserID = "userID"

type statsResponse struct {
	broadcast.Stats
	Connections int64 `json:"connections"`
}

type publishResponse struct {
	Delivered int `json:"delivered"`
}

// requireBearer authenticates producers calling the publish ingress.
func (s *Server) requireBearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.verifier == nil {
			return apperrors.UnavailableError("authentication is not configured")
		}

		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			return apperrors.AuthError("missing bearer token", nil)
		}

		identity, err := s.verifier.Verify(c.Request().Context(), strings.TrimSpace(token))
		if err != nil {
			return err
		}

		c.Set(contextKeyUserID, identity.UserID)
		return next(c)
	}
}

func (s *Server) handlePublishEvent(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperrors.ValidationError("failed to read request body")
	}

	ev, err := protocol.DecodeEvent(body)
	if err != nil {
		return err
	}

	delivered, err := s.registry.Publish(ev)
	if errors.Is(err, broadcast.ErrUnicastEvent) {
		return apperrors.ValidationError("only broadcast events can be published").
			WithField("type", string(ev.EventType()))
	}
	if err != nil {
		return apperrors.InternalError("failed to publish event", err)
	}

	s.logger.DebugContext(c.Request().Context(), "Event published",
		"type", ev.EventType(),
		"delivered", delivered,
		"producer", c.Get(contextKeyUserID),
	)

	if err := c.JSON(http.StatusOK, publishResponse{Delivered: delivered}); err != nil {
		return fmt.Errorf("failed to write publish response: %w", err)
	}
	return nil
}

func (s *Server) handleStats(c echo.Context) error {
	response := statsResponse{
		Stats:       s.registry.Stats(),
		Connections: s.limits.Current(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write stats response: %w", err)
	}
	return nil
}
