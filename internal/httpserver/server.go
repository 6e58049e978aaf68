// Package httpserver exposes the hub over HTTP: the WebSocket endpoint,
// the publish ingress for in-process producers elsewhere in the backend,
// and the operational endpoints (health, metrics, version, stats).
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/tyeom/zeroquant-sub005/internal/broadcast"
	"github.com/tyeom/zeroquant-sub005/internal/connection"
	"github.com/tyeom/zeroquant-sub005/internal/platform/config"
)

const (
	readBufferSize  = 1024
	writeBufferSize = 4096
)

type Server struct {
	echo     *echo.Echo
	config   *config.Config
	registry *broadcast.Registry
	verifier connection.TokenVerifier
	limits   *ConnectionLimits
	upgrader websocket.Upgrader
	clock    clockwork.Clock
	logger   *slog.Logger

	healthChecks []HealthCheck
	startTime    time.Time

	// sessions outlives individual requests; cancelling it closes every
	// WebSocket session with a going-away frame.
	sessions       context.Context
	cancelSessions context.CancelFunc
	active         sync.WaitGroup
}

type Option func(*Server)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

func WithHealthChecks(checks ...HealthCheck) Option {
	return func(s *Server) { s.healthChecks = append(s.healthChecks, checks...) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer wires the routes. verifier authenticates both in-band WebSocket
// auth commands and the publish ingress.
func NewServer(cfg *config.Config, registry *broadcast.Registry, verifier connection.TokenVerifier, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	sessions, cancel := context.WithCancel(context.Background())
	srv := &Server{
		echo:           e,
		config:         cfg,
		registry:       registry,
		verifier:       verifier,
		clock:          clockwork.NewRealClock(),
		logger:         slog.Default(),
		sessions:       sessions,
		cancelSessions: cancel,
	}
	for _, opt := range opts {
		opt(srv)
	}

	srv.startTime = srv.clock.Now()
	srv.limits = NewConnectionLimits(
		int64(cfg.MaxWebSocketConnections),
		cfg.MaxConnectionsPerIP,
		cfg.ConnectionRate,
		cfg.ConnectionBurst,
		srv.clock,
	)
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  readBufferSize,
		WriteBufferSize: writeBufferSize,
		CheckOrigin:     NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment()),
	}
	srv.healthChecks = append([]HealthCheck{{Name: "sessions", Check: srv.checkAcceptingSessions}}, srv.healthChecks...)

	srv.registerRoutes()

	return srv
}

// Handler exposes the router, mainly for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	s.logger.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, closes every WebSocket session with a
// going-away frame and waits for the sessions to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelSessions()

	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sessions to close: %w", ctx.Err())
	}
}

func (s *Server) checkAcceptingSessions(_ context.Context) error {
	if s.sessions.Err() != nil {
		return errors.New("shutting down")
	}
	return nil
}
