package connection

import (
	"context"
	"time"

	"github.com/tyeom/zeroquant-sub005/internal/auth"
)

// Transport is a bidirectional message channel. *websocket.Conn satisfies it.
type Transport interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// keepAliveTransport is implemented by transports that support protocol
// pings and deadlines, such as *websocket.Conn.
type keepAliveTransport interface {
	Transport
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// TokenVerifier checks a bearer token presented by a client.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
}
