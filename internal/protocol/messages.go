package protocol

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// CommandType is the "type" discriminator of an inbound client message.
type CommandType string

const (
	CommandSubscribe   CommandType = "subscribe"
	CommandUnsubscribe CommandType = "unsubscribe"
	CommandPing        CommandType = "ping"
	CommandAuth        CommandType = "auth"
)

// Command is a parsed inbound client message.
type Command interface {
	CommandType() CommandType
}

type Subscribe struct {
	Channels []string `json:"channels"`
}

type Unsubscribe struct {
	Channels []string `json:"channels"`
}

type Ping struct{}

type Authenticate struct {
	Token string `json:"token"`
}

func (Subscribe) CommandType() CommandType    { return CommandSubscribe }
func (Unsubscribe) CommandType() CommandType  { return CommandUnsubscribe }
func (Ping) CommandType() CommandType         { return CommandPing }
func (Authenticate) CommandType() CommandType { return CommandAuth }

// EventType is the "type" discriminator of an outbound server message.
type EventType string

const (
	EventWelcome      EventType = "welcome"
	EventSubscribed   EventType = "subscribed"
	EventUnsubscribed EventType = "unsubscribed"
	EventPong         EventType = "pong"
	EventAuthResult   EventType = "auth_result"
	EventError        EventType = "error"

	EventTicker           EventType = "ticker"
	EventTrade            EventType = "trade"
	EventOrderBook        EventType = "order_book"
	EventOrderUpdate      EventType = "order_update"
	EventPositionUpdate   EventType = "position_update"
	EventStrategyUpdate   EventType = "strategy_update"
	EventSimulationUpdate EventType = "simulation_update"
)

// Event is an outbound server message. Welcome, Subscribed, Unsubscribed,
// Pong, AuthResult and ErrorEvent are unicast: they answer one session and
// are written straight to its transport. All other events travel over the
// bus and are filtered per session.
type Event interface {
	EventType() EventType
}

type Welcome struct {
	Version   string `json:"version"`
	Timestamp int64  `json:"timestamp"`
}

type Subscribed struct {
	Channels []string `json:"channels"`
}

type Unsubscribed struct {
	Channels []string `json:"channels"`
}

type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

type AuthResult struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	UserID  *string `json:"user_id,omitempty"`
}

// ErrorEvent reports a rejected inbound message to the sending session.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Ticker struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change_24h"`
	Volume24h decimal.Decimal `json:"volume_24h"`
	High24h   decimal.Decimal `json:"high_24h"`
	Low24h    decimal.Decimal `json:"low_24h"`
	Timestamp int64           `json:"timestamp"`
}

type Trade struct {
	Symbol    string          `json:"symbol"`
	TradeID   string          `json:"trade_id"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Side      string          `json:"side"`
	Timestamp int64           `json:"timestamp"`
}

type OrderBookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

type OrderBook struct {
	Symbol    string           `json:"symbol"`
	Bids      []OrderBookLevel `json:"bids"`
	Asks      []OrderBookLevel `json:"asks"`
	Timestamp int64            `json:"timestamp"`
}

type OrderUpdate struct {
	OrderID        string           `json:"order_id"`
	Symbol         string           `json:"symbol"`
	Status         string           `json:"status"`
	Side           string           `json:"side"`
	OrderType      string           `json:"order_type"`
	Quantity       decimal.Decimal  `json:"quantity"`
	FilledQuantity decimal.Decimal  `json:"filled_quantity"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	AveragePrice   *decimal.Decimal `json:"average_price,omitempty"`
	Timestamp      int64            `json:"timestamp"`
}

type PositionUpdate struct {
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	ReturnPct     decimal.Decimal `json:"return_pct"`
	Timestamp     int64           `json:"timestamp"`
}

type StrategyUpdate struct {
	StrategyID string          `json:"strategy_id"`
	Name       string          `json:"name"`
	Running    bool            `json:"running"`
	Event      string          `json:"event"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  int64           `json:"timestamp"`
}

type SimulationUpdate struct {
	Event         string          `json:"event"`
	State         string          `json:"state"`
	Balance       decimal.Decimal `json:"balance"`
	Equity        decimal.Decimal `json:"equity"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	PositionCount int             `json:"position_count"`
	TradeCount    int             `json:"trade_count"`
	Data          json.RawMessage `json:"data,omitempty"`
	Timestamp     int64           `json:"timestamp"`
}

func (Welcome) EventType() EventType      { return EventWelcome }
func (Subscribed) EventType() EventType   { return EventSubscribed }
func (Unsubscribed) EventType() EventType { return EventUnsubscribed }
func (Pong) EventType() EventType         { return EventPong }
func (AuthResult) EventType() EventType   { return EventAuthResult }
func (ErrorEvent) EventType() EventType   { return EventError }

func (Ticker) EventType() EventType           { return EventTicker }
func (Trade) EventType() EventType            { return EventTrade }
func (OrderBook) EventType() EventType        { return EventOrderBook }
func (OrderUpdate) EventType() EventType      { return EventOrderUpdate }
func (PositionUpdate) EventType() EventType   { return EventPositionUpdate }
func (StrategyUpdate) EventType() EventType   { return EventStrategyUpdate }
func (SimulationUpdate) EventType() EventType { return EventSimulationUpdate }

// IsUnicast reports whether ev is a per-session response that must never
// be published on the bus.
func IsUnicast(ev Event) bool {
	switch ev.(type) {
	case Welcome, Subscribed, Unsubscribed, Pong, AuthResult, ErrorEvent:
		return true
	default:
		return false
	}
}
