package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyeom/zeroquant-sub005/internal/platform/retry"
)

// newGateway starts a WebSocket server that records the first client
// message and then writes frames.
func newGateway(t *testing.T, frames []string) (*httptest.Server, <-chan string, <-chan string) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	firstMessage := make(chan string, 1)
	authHeader := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		firstMessage <- string(msg)

		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, firstMessage, authHeader
}

func TestWebSocketStream_DecodesMarketFrames(t *testing.T) {
	srv, firstMessage, authHeader := newGateway(t, []string{
		`{"type":"welcome","version":"9.9.9","timestamp":1}`,
		`{"type":"subscribed","channels":["all_markets"]}`,
		`{"type":"ticker","symbol":"ETH-USDT","price":"3350.5","change_24h":"0.1","volume_24h":"10","high_24h":"3400","low_24h":"3300","timestamp":1700000000000}`,
		`{"type":"trade","symbol":"ETH-USDT","trade_id":"x1","price":"3350","quantity":"1","side":"sell","timestamp":1700000000001}`,
		`{"type":"order_book","symbol":"ETH-USDT","bids":[{"price":"3349","quantity":"4"}],"asks":[],"timestamp":1700000000002}`,
		`garbage`,
	})

	stream := NewWebSocketStream(StreamConfig{
		URL:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		Token:    "secret-token",
		Channels: []string{"all_markets"},
	}, nil, nil)
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	next := func() MarketEvent {
		ev, err := stream.Next(ctx)
		require.NoError(t, err)
		return ev
	}

	assert.Equal(t, StatusEvent{Connected: true}, next())
	assert.Equal(t, "Bearer secret-token", <-authHeader)
	assert.JSONEq(t, `{"type":"subscribe","channels":["all_markets"]}`, <-firstMessage)

	ticker, ok := next().(TickerEvent)
	require.True(t, ok)
	assert.Equal(t, "ETH-USDT", ticker.Symbol)
	assert.Equal(t, "3350.5", ticker.Last.String())
	assert.Equal(t, int64(1700000000000), ticker.Time.UnixMilli())

	trade, ok := next().(TradeEvent)
	require.True(t, ok)
	assert.Equal(t, "x1", trade.ID)

	book, ok := next().(OrderBookEvent)
	require.True(t, ok)
	require.Len(t, book.Bids, 1)
	assert.Empty(t, book.Asks)

	_, ok = next().(StreamError)
	assert.True(t, ok)
}

func TestWebSocketStream_CancelUnblocksRead(t *testing.T) {
	srv, _, _ := newGateway(t, nil)

	stream := NewWebSocketStream(StreamConfig{
		URL:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		Channels: []string{"orders"},
	}, nil, nil)
	defer stream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ev, err := stream.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusEvent{Connected: true}, ev)

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWebSocketStream_RejectedCredentialsAreNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	stream := NewWebSocketStream(StreamConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, nil, nil)

	ev, err := stream.Next(context.Background())
	require.NoError(t, err)
	streamErr, ok := ev.(StreamError)
	require.True(t, ok)
	assert.Contains(t, streamErr.Message, "status 401")
	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, minReconnect, stream.backoff.Current())
}

func TestWebSocketStream_DialRetriesWithBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	stream := NewWebSocketStream(StreamConfig{URL: "ws://127.0.0.1:1/unreachable"}, clock, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result := make(chan MarketEvent, 1)
	go func() {
		ev, _ := stream.Next(ctx)
		result <- ev
	}()

	for _, wait := range []time.Duration{minReconnect, 2 * minReconnect} {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(wait)
	}

	select {
	case ev := <-result:
		_, ok := ev.(StreamError)
		assert.True(t, ok)
	case <-ctx.Done():
		t.Fatal("stream did not give up after the dial attempts")
	}
	assert.Equal(t, minReconnect, stream.backoff.Current())
}

func TestClassifyDial(t *testing.T) {
	assert.Equal(t, retry.Stop, classifyDial(&HandshakeError{Status: http.StatusForbidden}))
	assert.Equal(t, retry.After, classifyDial(&HandshakeError{Status: http.StatusTooManyRequests}))
	assert.Equal(t, retry.Retry, classifyDial(&HandshakeError{Status: http.StatusBadGateway}))
	assert.Equal(t, retry.Retry, classifyDial(errors.New("connection refused")))
}
