package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-sub005/internal/metrics"
	"github.com/tyeom/zeroquant-sub005/internal/protocol"
)

// MarketEvent is one item of an upstream exchange stream.
type MarketEvent interface {
	marketEvent()
}

type TickerEvent struct {
	Symbol           string
	Last             decimal.Decimal
	Change24hPercent decimal.Decimal
	Volume24h        decimal.Decimal
	High24h          decimal.Decimal
	Low24h           decimal.Decimal
	Time             time.Time
}

type TradeEvent struct {
	Symbol   string
	ID       string
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Side     string
	Time     time.Time
}

type BookLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

type OrderBookEvent struct {
	Symbol string
	Bids   []BookLevel
	Asks   []BookLevel
	Time   time.Time
}

// StatusEvent reports upstream connectivity changes.
type StatusEvent struct {
	Connected bool
}

// StreamError is a non-fatal error reported by the upstream.
type StreamError struct {
	Message string
}

func (TickerEvent) marketEvent()    {}
func (TradeEvent) marketEvent()     {}
func (OrderBookEvent) marketEvent() {}
func (StatusEvent) marketEvent()    {}
func (StreamError) marketEvent()    {}

// MarketStream yields upstream events. Next returns io.EOF when the stream
// has ended.
type MarketStream interface {
	Next(ctx context.Context) (MarketEvent, error)
}

// Relay republishes an upstream market stream onto the bus as Ticker,
// Trade and OrderBook events.
type Relay struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewRelay(publisher Publisher, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{publisher: publisher, logger: logger}
}

// Run consumes stream until it ends or ctx is cancelled. Only a failing
// stream is reported as an error.
func (r *Relay) Run(ctx context.Context, stream MarketStream) error {
	r.logger.Info("Market data relay started")

	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				r.logger.Warn("Market data relay stopped: stream ended")
				return nil
			case ctx.Err() != nil:
				r.logger.Info("Market data relay stopped")
				return nil
			default:
				return fmt.Errorf("market stream: %w", err)
			}
		}
		r.handle(ev)
	}
}

func (r *Relay) handle(ev MarketEvent) {
	switch e := ev.(type) {
	case TickerEvent:
		r.publish(protocol.Ticker{
			Symbol:    e.Symbol,
			Price:     e.Last,
			Change24h: e.Change24hPercent,
			Volume24h: e.Volume24h,
			High24h:   e.High24h,
			Low24h:    e.Low24h,
			Timestamp: e.Time.UnixMilli(),
		})
	case TradeEvent:
		r.publish(protocol.Trade{
			Symbol:    e.Symbol,
			TradeID:   e.ID,
			Price:     e.Price,
			Quantity:  e.Quantity,
			Side:      e.Side,
			Timestamp: e.Time.UnixMilli(),
		})
	case OrderBookEvent:
		r.publish(protocol.OrderBook{
			Symbol:    e.Symbol,
			Bids:      levels(e.Bids),
			Asks:      levels(e.Asks),
			Timestamp: e.Time.UnixMilli(),
		})
	case StatusEvent:
		if e.Connected {
			r.logger.Info("Upstream market stream connected")
		} else {
			r.logger.Warn("Upstream market stream disconnected")
		}
	case StreamError:
		r.logger.Error("Upstream market stream error", "message", e.Message)
	}
}

func (r *Relay) publish(ev protocol.Event) {
	if _, err := r.publisher.Publish(ev); err != nil {
		r.logger.Debug("Relay publish failed", "type", ev.EventType(), "error", err)
		return
	}
	metrics.FeedRelayedTotal.WithLabelValues(string(ev.EventType())).Inc()
}

func levels(in []BookLevel) []protocol.OrderBookLevel {
	out := make([]protocol.OrderBookLevel, 0, len(in))
	for _, l := range in {
		out = append(out, protocol.OrderBookLevel{Price: l.Price, Quantity: l.Quantity})
	}
	return out
}
