package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/tyeom/zeroquant-sub005/internal/platform/retry"
	"github.com/tyeom/zeroquant-sub005/internal/protocol"
)

const (
	handshakeTimeout = 10 * time.Second
	minReconnect     = time.Second
	maxReconnect     = 30 * time.Second
	dialAttempts     = 3
)

// StreamConfig describes a remote market-data gateway speaking this
// server's own wire protocol.
type StreamConfig struct {
	URL      string
	Token    string
	Channels []string
}

// WebSocketStream is a MarketStream backed by a remote WebSocket gateway.
// It reconnects with exponential backoff and reports connectivity changes
// as StatusEvents.
type WebSocketStream struct {
	cfg    StreamConfig
	dialer websocket.Dialer
	clock  clockwork.Clock
	logger *slog.Logger

	conn    *websocket.Conn
	backoff retry.Backoff
}

func NewWebSocketStream(cfg StreamConfig, clock clockwork.Clock, logger *slog.Logger) *WebSocketStream {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketStream{
		cfg:     cfg,
		dialer:  websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		clock:   clock,
		logger:  logger,
		backoff: retry.Backoff{Initial: minReconnect, Max: maxReconnect},
	}
}

// Next returns the next upstream market event. It is not safe for
// concurrent use.
func (s *WebSocketStream) Next(ctx context.Context) (MarketEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if s.conn == nil {
			if err := s.connect(ctx); err != nil {
				return StreamError{Message: err.Error()}, nil
			}
			return StatusEvent{Connected: true}, nil
		}

		ev, err := s.read(ctx)
		if err != nil {
			s.disconnect()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("Upstream market stream read failed", "error", err)
			return StatusEvent{Connected: false}, nil
		}
		if ev != nil {
			return ev, nil
		}
	}
}

func (s *WebSocketStream) connect(ctx context.Context) error {
	if wait := s.backoff.Current(); wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(wait):
		}
	}

	policy := retry.Policy{
		MaxAttempts:      dialAttempts,
		InitialBackoff:   minReconnect,
		MaxBackoff:       maxReconnect,
		RateLimitBackoff: maxReconnect,
		Clock:            s.clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			s.logger.Warn("Upstream dial failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
	conn, err := retry.Do(ctx, policy, classifyDial, func() (*websocket.Conn, error) {
		return s.dial(ctx)
	})
	if err != nil {
		s.backoff.Next()
		return fmt.Errorf("connect upstream: %w", err)
	}

	s.conn = conn
	s.backoff.Reset()
	s.logger.Info("Connected to upstream market stream", "url", s.cfg.URL, "channels", s.cfg.Channels)
	return nil
}

func (s *WebSocketStream) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, &HandshakeError{Status: resp.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("dial upstream: %w", err)
	}

	if len(s.cfg.Channels) > 0 {
		subscribe := struct {
			Type     protocol.CommandType `json:"type"`
			Channels []string             `json:"channels"`
		}{protocol.CommandSubscribe, s.cfg.Channels}
		if err := conn.WriteJSON(subscribe); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("subscribe upstream: %w", err)
		}
	}
	return conn, nil
}

// HandshakeError is an upgrade the gateway answered with a non-101 status.
type HandshakeError struct {
	Status int
	Err    error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("upstream rejected handshake with status %d", e.Status)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// classifyDial gives up on credential rejections and slows down when the
// gateway sheds load.
func classifyDial(err error) retry.Action {
	var hs *HandshakeError
	if errors.As(err, &hs) {
		switch hs.Status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return retry.Stop
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return retry.After
		}
	}
	return retry.Retry
}

// read returns nil, nil for frames that carry no market data.
func (s *WebSocketStream) read(ctx context.Context) (MarketEvent, error) {
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	ev, err := protocol.DecodeEvent(data)
	if err != nil {
		return StreamError{Message: err.Error()}, nil
	}

	switch e := ev.(type) {
	case protocol.Ticker:
		return TickerEvent{
			Symbol:           e.Symbol,
			Last:             e.Price,
			Change24hPercent: e.Change24h,
			Volume24h:        e.Volume24h,
			High24h:          e.High24h,
			Low24h:           e.Low24h,
			Time:             time.UnixMilli(e.Timestamp),
		}, nil
	case protocol.Trade:
		return TradeEvent{
			Symbol:   e.Symbol,
			ID:       e.TradeID,
			Price:    e.Price,
			Quantity: e.Quantity,
			Side:     e.Side,
			Time:     time.UnixMilli(e.Timestamp),
		}, nil
	case protocol.OrderBook:
		book := OrderBookEvent{Symbol: e.Symbol, Time: time.UnixMilli(e.Timestamp)}
		for _, l := range e.Bids {
			book.Bids = append(book.Bids, BookLevel{Price: l.Price, Quantity: l.Quantity})
		}
		for _, l := range e.Asks {
			book.Asks = append(book.Asks, BookLevel{Price: l.Price, Quantity: l.Quantity})
		}
		return book, nil
	case protocol.ErrorEvent:
		return StreamError{Message: e.Code + ": " + e.Message}, nil
	default:
		s.logger.Debug("Ignoring upstream message", "type", ev.EventType())
		return nil, nil
	}
}

func (s *WebSocketStream) disconnect() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.backoff.Next()
}

// Close releases the upstream connection.
func (s *WebSocketStream) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
