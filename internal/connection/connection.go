// Package connection drives one client session: it registers the session,
// answers client commands, and forwards matching bus events until either
// side goes away.
package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/tyeom/zeroquant-sub005/internal/broadcast"
	"github.com/tyeom/zeroquant-sub005/internal/metrics"
	"github.com/tyeom/zeroquant-sub005/internal/platform/correlation"
	apperrors "github.com/tyeom/zeroquant-sub005/internal/platform/errors"
	"github.com/tyeom/zeroquant-sub005/internal/protocol"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	pongDeadline  = 60 * time.Second
)

// Connection is one client session on top of a Transport.
type Connection struct {
	id        string
	transport Transport
	keepAlive keepAliveTransport
	registry  *broadcast.Registry
	verifier  TokenVerifier
	clock     clockwork.Clock
	version   string
	logger    *slog.Logger

	state     atomic.Int32
	writeMu   sync.Mutex
	closeOnce sync.Once
	mailbox   *broadcast.Mailbox
}

type Option func(*Connection)

func WithClock(clock clockwork.Clock) Option {
	return func(c *Connection) { c.clock = clock }
}

// WithVersion sets the server version announced in the welcome message.
func WithVersion(version string) Option {
	return func(c *Connection) { c.version = version }
}

func WithSessionID(id string) Option {
	return func(c *Connection) { c.id = id }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Connection) { c.logger = logger }
}

// New creates a connection in the Connecting state. verifier may be nil,
// in which case every auth attempt fails.
func New(transport Transport, registry *broadcast.Registry, verifier TokenVerifier, opts ...Option) *Connection {
	c := &Connection{
		id:        uuid.NewString(),
		transport: transport,
		registry:  registry,
		verifier:  verifier,
		clock:     clockwork.NewRealClock(),
		version:   "dev",
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if ka, ok := transport.(keepAliveTransport); ok {
		c.keepAlive = ka
	}
	return c
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
}

// Serve runs the session until the client disconnects, a transport error
// occurs or ctx is cancelled. Cancelling ctx sends a 1001 close frame.
// It returns nil on an orderly close and a transport error otherwise.
func (c *Connection) Serve(ctx context.Context) error {
	ctx = correlation.WithID(ctx, c.id)
	started := c.clock.Now()

	c.mailbox = c.registry.Register(c.id)
	c.setState(StateOpen)
	metrics.WebSocketConnectionsCurrent.Inc()
	defer func() {
		metrics.WebSocketConnectionsCurrent.Dec()
		metrics.WebSocketConnectionDuration.Observe(c.clock.Since(started).Seconds())
	}()

	c.logger.InfoContext(ctx, "Client connected", "session_id", c.id)
	c.configureKeepAlive()

	if err := c.write(protocol.Welcome{Version: c.version, Timestamp: c.nowMillis()}); err != nil {
		c.close(ctx, false)
		c.setState(StateClosed)
		return err
	}

	dutyCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(dutyCtx)
	g.Go(func() error {
		defer cancel()
		return c.readLoop(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return c.writeLoop(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		c.close(ctx, ctx.Err() != nil)
		return nil
	})

	err := g.Wait()
	c.setState(StateClosed)

	if err != nil {
		c.logger.WarnContext(ctx, "Client disconnected with error", "session_id", c.id, "error", err)
		metrics.WebSocketConnectionsTotal.WithLabelValues("error").Inc()
		return err
	}
	c.logger.InfoContext(ctx, "Client disconnected", "session_id", c.id)
	metrics.WebSocketConnectionsTotal.WithLabelValues("closed").Inc()
	return nil
}

// close unregisters the session and releases the transport exactly once.
func (c *Connection) close(ctx context.Context, goingAway bool) {
	c.closeOnce.Do(func() {
		c.setState(StateClosing)
		c.registry.Unregister(c.id)
		c.mailbox.Close()

		if goingAway {
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			c.writeMu.Lock()
			c.setWriteDeadline()
			if err := c.transport.WriteMessage(websocket.CloseMessage, msg); err != nil {
				c.logger.DebugContext(ctx, "Failed to send close frame", "error", err)
			}
			c.writeMu.Unlock()
		}

		if err := c.transport.Close(); err != nil {
			c.logger.DebugContext(ctx, "Transport close failed", "error", err)
		}
	})
}

func (c *Connection) readLoop(ctx context.Context) error {
	for {
		messageType, data, err := c.transport.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				c.logger.DebugContext(ctx, "Client sent close frame", "code", closeErr.Code)
				return nil
			}
			return apperrors.TransportError("read failed", err)
		}
		c.extendReadDeadline()

		switch messageType {
		case websocket.TextMessage:
			if err := c.handleText(ctx, data); err != nil {
				return err
			}
		case websocket.BinaryMessage:
			c.logger.WarnContext(ctx, "Ignoring binary message", "size", len(data))
		case websocket.CloseMessage:
			return nil
		}
	}
}

func (c *Connection) handleText(ctx context.Context, data []byte) error {
	cmd, err := protocol.ParseInbound(data)
	if err != nil {
		metrics.WebSocketProtocolErrors.Inc()
		structured := apperrors.AsStructuredError(err)
		c.logger.DebugContext(ctx, "Invalid client message", "error", structured.Message)
		return c.write(protocol.ErrorEvent{Code: structured.Code(), Message: structured.Message})
	}

	metrics.WebSocketCommandsTotal.WithLabelValues(string(cmd.CommandType())).Inc()

	switch cmd := cmd.(type) {
	case protocol.Subscribe:
		accepted := c.registry.Subscribe(c.id, cmd.Channels)
		c.logger.DebugContext(ctx, "Client subscribed", "requested", len(cmd.Channels), "accepted", accepted)
		return c.write(protocol.Subscribed{Channels: accepted})
	case protocol.Unsubscribe:
		removed := c.registry.Unsubscribe(c.id, cmd.Channels)
		c.logger.DebugContext(ctx, "Client unsubscribed", "removed", removed)
		return c.write(protocol.Unsubscribed{Channels: removed})
	case protocol.Ping:
		return c.write(protocol.Pong{Timestamp: c.nowMillis()})
	case protocol.Authenticate:
		return c.write(c.authenticate(ctx, cmd.Token))
	}
	return nil
}

func (c *Connection) authenticate(ctx context.Context, token string) protocol.AuthResult {
	if c.verifier == nil {
		metrics.WebSocketAuthTotal.WithLabelValues("failure").Inc()
		return protocol.AuthResult{Message: "Authentication failed: authentication is not configured"}
	}

	identity, err := c.verifier.Verify(ctx, token)
	if err != nil {
		metrics.WebSocketAuthTotal.WithLabelValues("failure").Inc()
		reason := apperrors.AsStructuredError(err).Message
		if !apperrors.IsKind(err, apperrors.KindAuth) {
			reason = err.Error()
		}
		c.logger.InfoContext(ctx, "Client authentication failed", "reason", reason)
		return protocol.AuthResult{Message: "Authentication failed: " + reason}
	}

	c.registry.Authenticate(c.id, identity.UserID)
	metrics.WebSocketAuthTotal.WithLabelValues("success").Inc()
	c.logger.InfoContext(ctx, "Client authenticated", "user_id", identity.UserID)

	userID := identity.UserID
	return protocol.AuthResult{Success: true, Message: "Authenticated successfully", UserID: &userID}
}

func (c *Connection) writeLoop(ctx context.Context) error {
	var pings <-chan time.Time
	if c.keepAlive != nil {
		ticker := c.clock.NewTicker(pingInterval)
		defer ticker.Stop()
		pings = ticker.Chan()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.mailbox.Ready():
			if err := c.drain(ctx); err != nil {
				return err
			}
		case <-pings:
			if err := c.writeFrame(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketPingFailures.Inc()
				return err
			}
		}
	}
}

// drain forwards every queued event the session subscribes to.
func (c *Connection) drain(ctx context.Context) error {
	for ctx.Err() == nil {
		ev, err := c.mailbox.TryRecv()

		var lag *broadcast.LagError
		switch {
		case err == nil:
			if !c.registry.ShouldDeliver(c.id, ev) {
				continue
			}
			if err := c.write(ev); err != nil {
				return err
			}
		case errors.As(err, &lag):
			c.logger.WarnContext(ctx, "Client lagging behind, events dropped", "missed", lag.Missed)
		default:
			// ErrEmpty or ErrClosed
			return nil
		}
	}
	return nil
}

func (c *Connection) write(ev protocol.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		c.logger.Error("Failed to encode event", "type", ev.EventType(), "error", err)
		return nil
	}

	start := c.clock.Now()
	if err := c.writeFrame(websocket.TextMessage, data); err != nil {
		return err
	}
	metrics.WebSocketMessageSendDuration.Observe(c.clock.Since(start).Seconds())
	metrics.WebSocketMessagesSent.WithLabelValues(string(ev.EventType())).Inc()
	return nil
}

func (c *Connection) writeFrame(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.setWriteDeadline()
	if err := c.transport.WriteMessage(messageType, data); err != nil {
		return apperrors.TransportError("write failed", err)
	}
	return nil
}

func (c *Connection) configureKeepAlive() {
	if c.keepAlive == nil {
		return
	}
	c.extendReadDeadline()
	c.keepAlive.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})
}

func (c *Connection) extendReadDeadline() {
	if c.keepAlive != nil {
		_ = c.keepAlive.SetReadDeadline(c.clock.Now().Add(pongDeadline))
	}
}

func (c *Connection) setWriteDeadline() {
	if c.keepAlive != nil {
		_ = c.keepAlive.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
	}
}

func (c *Connection) nowMillis() int64 {
	return c.clock.Now().UnixMilli()
}
