package protocol

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/tyeom/zeroquant-sub005/internal/platform/errors"
)

// ParseInbound decodes one client text frame. Unknown or missing "type",
// invalid JSON and missing required fields yield a protocol error.
func ParseInbound(data []byte) (Command, error) {
	var envelope struct {
		Type CommandType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, invalid("invalid JSON: %v", err)
	}

	switch envelope.Type {
	case CommandSubscribe:
		channels, err := decodeChannels(data, envelope.Type)
		if err != nil {
			return nil, err
		}
		return Subscribe{Channels: channels}, nil
	case CommandUnsubscribe:
		channels, err := decodeChannels(data, envelope.Type)
		if err != nil {
			return nil, err
		}
		return Unsubscribe{Channels: channels}, nil
	case CommandPing:
		return Ping{}, nil
	case CommandAuth:
		var body struct {
			Token *string `json:"token"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, invalid("invalid auth message: %v", err)
		}
		if body.Token == nil {
			return nil, invalid("missing field `token`")
		}
		return Authenticate{Token: *body.Token}, nil
	case "":
		return nil, invalid("missing field `type`")
	default:
		return nil, invalid("unknown message type %q", envelope.Type)
	}
}

func decodeChannels(data []byte, typ CommandType) ([]string, error) {
	var body struct {
		Channels []string `json:"channels"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, invalid("invalid %s message: %v", typ, err)
	}
	if body.Channels == nil {
		return nil, invalid("missing field `channels`")
	}
	return body.Channels, nil
}

func invalid(format string, args ...any) error {
	return apperrors.ProtocolError(fmt.Sprintf(format, args...))
}

// Encode renders ev as JSON with the "type" discriminator as the first key.
func Encode(ev Event) ([]byte, error) {
	var v any
	switch e := ev.(type) {
	case Welcome:
		v = struct {
			Type EventType `json:"type"`
			Welcome
		}{EventWelcome, e}
	case Subscribed:
		e.Channels = nonNil(e.Channels)
		v = struct {
			Type EventType `json:"type"`
			Subscribed
		}{EventSubscribed, e}
	case Unsubscribed:
		e.Channels = nonNil(e.Channels)
		v = struct {
			Type EventType `json:"type"`
			Unsubscribed
		}{EventUnsubscribed, e}
	case Pong:
		v = struct {
			Type EventType `json:"type"`
			Pong
		}{EventPong, e}
	case AuthResult:
		v = struct {
			Type EventType `json:"type"`
			AuthResult
		}{EventAuthResult, e}
	case ErrorEvent:
		v = struct {
			Type EventType `json:"type"`
			ErrorEvent
		}{EventError, e}
	case Ticker:
		v = struct {
			Type EventType `json:"type"`
			Ticker
		}{EventTicker, e}
	case Trade:
		v = struct {
			Type EventType `json:"type"`
			Trade
		}{EventTrade, e}
	case OrderBook:
		e.Bids = nonNil(e.Bids)
		e.Asks = nonNil(e.Asks)
		v = struct {
			Type EventType `json:"type"`
			OrderBook
		}{EventOrderBook, e}
	case OrderUpdate:
		v = struct {
			Type EventType `json:"type"`
			OrderUpdate
		}{EventOrderUpdate, e}
	case PositionUpdate:
		v = struct {
			Type EventType `json:"type"`
			PositionUpdate
		}{EventPositionUpdate, e}
	case StrategyUpdate:
		v = struct {
			Type EventType `json:"type"`
			StrategyUpdate
		}{EventStrategyUpdate, e}
	case SimulationUpdate:
		v = struct {
			Type EventType `json:"type"`
			SimulationUpdate
		}{EventSimulationUpdate, e}
	default:
		return nil, fmt.Errorf("encode: unsupported event %T", ev)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventType(), err)
	}
	return data, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// DecodeEvent is the inverse of Encode.
func DecodeEvent(data []byte) (Event, error) {
	var envelope struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, invalid("invalid JSON: %v", err)
	}

	switch envelope.Type {
	case EventWelcome:
		return decodeAs[Welcome](data)
	case EventSubscribed:
		return decodeAs[Subscribed](data)
	case EventUnsubscribed:
		return decodeAs[Unsubscribed](data)
	case EventPong:
		return decodeAs[Pong](data)
	case EventAuthResult:
		return decodeAs[AuthResult](data)
	case EventError:
		return decodeAs[ErrorEvent](data)
	case EventTicker:
		return decodeAs[Ticker](data)
	case EventTrade:
		return decodeAs[Trade](data)
	case EventOrderBook:
		return decodeAs[OrderBook](data)
	case EventOrderUpdate:
		return decodeAs[OrderUpdate](data)
	case EventPositionUpdate:
		return decodeAs[PositionUpdate](data)
	case EventStrategyUpdate:
		return decodeAs[StrategyUpdate](data)
	case EventSimulationUpdate:
		return decodeAs[SimulationUpdate](data)
	case "":
		return nil, invalid("missing field `type`")
	default:
		return nil, invalid("unknown event type %q", envelope.Type)
	}
}

func decodeAs[T Event](data []byte) (Event, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, invalid("invalid %s event: %v", ev.EventType(), err)
	}
	return ev, nil
}
