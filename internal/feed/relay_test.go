package feed

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyeom/zeroquant-sub005/internal/protocol"
)

type sliceStream struct {
	events []MarketEvent
	err    error
}

func (s *sliceStream) Next(ctx context.Context) (MarketEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.events) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func TestRelay_RepublishesMarketEvents(t *testing.T) {
	at := time.UnixMilli(1700000000500)
	stream := &sliceStream{events: []MarketEvent{
		StatusEvent{Connected: true},
		TickerEvent{Symbol: "BTC-USDT", Last: decimal.NewFromInt(50000), Change24hPercent: decimal.RequireFromString("1.5"), Time: at},
		TradeEvent{Symbol: "BTC-USDT", ID: "t-1", Price: decimal.NewFromInt(50001), Quantity: decimal.RequireFromString("0.1"), Side: "buy", Time: at},
		OrderBookEvent{
			Symbol: "BTC-USDT",
			Bids:   []BookLevel{{Price: decimal.NewFromInt(49999), Quantity: decimal.NewFromInt(2)}},
			Time:   at,
		},
		StreamError{Message: "rate limited"},
		StatusEvent{Connected: false},
	}}
	pub := &recordingPublisher{}

	require.NoError(t, NewRelay(pub, nil).Run(context.Background(), stream))

	require.Len(t, pub.events, 3)

	ticker := pub.events[0].(protocol.Ticker)
	assert.Equal(t, "BTC-USDT", ticker.Symbol)
	assert.Equal(t, "50000", ticker.Price.String())
	assert.Equal(t, "1.5", ticker.Change24h.String())
	assert.Equal(t, int64(1700000000500), ticker.Timestamp)

	trade := pub.events[1].(protocol.Trade)
	assert.Equal(t, "t-1", trade.TradeID)
	assert.Equal(t, "buy", trade.Side)

	book := pub.events[2].(protocol.OrderBook)
	require.Len(t, book.Bids, 1)
	assert.Equal(t, "49999", book.Bids[0].Price.String())
	assert.NotNil(t, book.Asks)
	assert.Empty(t, book.Asks)
}

func TestRelay_StreamFailure(t *testing.T) {
	boom := errors.New("upstream gone")
	err := NewRelay(&recordingPublisher{}, nil).Run(context.Background(), &sliceStream{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestRelay_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewRelay(&recordingPublisher{}, nil).Run(ctx, &sliceStream{events: []MarketEvent{StatusEvent{}}})
	assert.NoError(t, err)
}
