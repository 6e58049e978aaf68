package feed

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-sub005/internal/metrics"
	"github.com/tyeom/zeroquant-sub005/internal/protocol"
)

// DefaultInterval is the simulator tick period.
const DefaultInterval = time.Second

// DemandSource reports the market symbols sessions currently want.
type DemandSource interface {
	DemandSnapshot() []string
}

// Publisher accepts broadcast events.
type Publisher interface {
	Publish(ev protocol.Event) (int, error)
}

var (
	maxStep      = decimal.RequireFromString("0.005")
	maxVolStep   = decimal.RequireFromString("0.001")
	hundred      = decimal.NewFromInt(100)
	highFactor   = decimal.RequireFromString("1.02")
	lowFactor    = decimal.RequireFromString("0.98")
	seedVolume   = decimal.NewFromInt(1_000_000)
	pricePlaces  = int32(8)
	changePlaces = int32(4)
)

type symbolPrice struct {
	base   decimal.Decimal
	price  decimal.Decimal
	high   decimal.Decimal
	low    decimal.Decimal
	volume decimal.Decimal
}

// seedPrices holds realistic starting points for commonly watched symbols.
var seedPrices = map[string]symbolPrice{
	"BTC-USDT":  seed("105000", "107000", "103000", "500000000"),
	"ETH-USDT":  seed("3350", "3400", "3300", "200000000"),
	"SPY":       seed("605.50", "608.00", "602.00", "50000000"),
	"QQQ":       seed("528.30", "532.00", "525.00", "35000000"),
	"TQQQ":      seed("85.40", "87.00", "84.00", "80000000"),
	"005930":    seed("161500", "163000", "160000", "12000000"),
	"000660":    seed("178000", "180000", "175000", "3500000"),
	"035720":    seed("42500", "43500", "41500", "2800000"),
	"035420":    seed("185000", "188000", "182000", "1200000"),
	"KODEX-200": seed("36500", "37000", "36000", "1500000"),
}

func seed(base, high, low, volume string) symbolPrice {
	b := decimal.RequireFromString(base)
	return symbolPrice{
		base:   b,
		price:  b,
		high:   decimal.RequireFromString(high),
		low:    decimal.RequireFromString(low),
		volume: decimal.RequireFromString(volume),
	}
}

// basePrice picks a plausible starting price from the symbol's shape:
// numeric codes look like KRX listings, USD pairs like crypto quotes and
// short upper-case tickers like US equities.
func basePrice(symbol string) decimal.Decimal {
	switch {
	case symbol != "" && allDigits(symbol):
		return decimal.NewFromInt(50000)
	case strings.Contains(symbol, "USD"):
		return decimal.NewFromInt(100)
	case len(symbol) <= 5 && allUpper(symbol):
		return decimal.NewFromInt(150)
	default:
		return decimal.NewFromInt(50000)
	}
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func allUpper(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func newSymbolPrice(symbol string) symbolPrice {
	if p, ok := seedPrices[symbol]; ok {
		return p
	}
	base := basePrice(symbol)
	return symbolPrice{
		base:   base,
		price:  base,
		high:   base.Mul(highFactor),
		low:    base.Mul(lowFactor),
		volume: seedVolume,
	}
}

// Simulator publishes a random-walk Ticker for every symbol that has ever
// been subscribed. Symbols stay tracked after their last subscriber leaves.
type Simulator struct {
	demand    DemandSource
	publisher Publisher
	clock     clockwork.Clock
	interval  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]*symbolPrice
}

type Option func(*Simulator)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Simulator) { s.clock = clock }
}

func WithInterval(d time.Duration) Option {
	return func(s *Simulator) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRand sets the random source, mainly for reproducible tests.
func WithRand(rng *rand.Rand) Option {
	return func(s *Simulator) { s.rng = rng }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Simulator) { s.logger = logger }
}

func NewSimulator(demand DemandSource, publisher Publisher, opts ...Option) *Simulator {
	s := &Simulator{
		demand:    demand,
		publisher: publisher,
		clock:     clockwork.NewRealClock(),
		interval:  DefaultInterval,
		logger:    slog.Default(),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		prices:    make(map[string]*symbolPrice),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Mock market feed started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Mock market feed stopped", "tracked_symbols", len(s.Tracked()))
			return
		case <-ticker.Chan():
			s.tick()
		}
	}
}

// Tracked returns the sorted symbols the simulator is pricing.
func (s *Simulator) Tracked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbols := make([]string, 0, len(s.prices))
	for symbol := range s.prices {
		symbols = append(symbols, symbol)
	}
	slices.Sort(symbols)
	return symbols
}

func (s *Simulator) tick() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Mock market feed tick panicked", "panic", r)
		}
	}()

	tickers := s.advance(s.demand.DemandSnapshot())
	for _, t := range tickers {
		if _, err := s.publisher.Publish(t); err != nil {
			s.logger.Debug("Ticker publish failed", "symbol", t.Symbol, "error", err)
		}
	}
	metrics.FeedTicksTotal.Inc()
}

// advance provisions newly demanded symbols, moves every tracked price one
// step and returns the resulting tickers in symbol order.
func (s *Simulator) advance(demanded []string) []protocol.Ticker {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, symbol := range demanded {
		if _, ok := s.prices[symbol]; ok {
			continue
		}
		p := newSymbolPrice(symbol)
		s.prices[symbol] = &p
		s.logger.Info("Tracking new symbol", "symbol", symbol, "base_price", p.base.String())
	}
	metrics.FeedTrackedSymbols.Set(float64(len(s.prices)))

	symbols := make([]string, 0, len(s.prices))
	for symbol := range s.prices {
		symbols = append(symbols, symbol)
	}
	slices.Sort(symbols)

	timestamp := s.clock.Now().UnixMilli()
	tickers := make([]protocol.Ticker, 0, len(symbols))
	for _, symbol := range symbols {
		p := s.prices[symbol]
		s.step(p)
		tickers = append(tickers, protocol.Ticker{
			Symbol:    symbol,
			Price:     p.price,
			Change24h: p.price.Sub(p.base).Div(p.base).Mul(hundred).Round(changePlaces),
			Volume24h: p.volume,
			High24h:   p.high,
			Low24h:    p.low,
			Timestamp: timestamp,
		})
	}
	return tickers
}

// step applies a uniform move in [-0.5%, +0.5%) and grows volume by [0, 0.1%).
func (s *Simulator) step(p *symbolPrice) {
	change := maxStep.Mul(decimal.NewFromFloat(s.rng.Float64()*2 - 1))
	p.price = p.price.Add(p.price.Mul(change)).Round(pricePlaces)
	if p.price.GreaterThan(p.high) {
		p.high = p.price
	}
	if p.price.LessThan(p.low) {
		p.low = p.price
	}

	growth := maxVolStep.Mul(decimal.NewFromFloat(s.rng.Float64()))
	p.volume = p.volume.Add(p.volume.Mul(growth)).Round(pricePlaces)
}
