package protocol

import "strings"

// ChannelKind identifies a subscribable interest category.
type ChannelKind uint8

const (
	ChannelMarket ChannelKind = iota + 1
	ChannelOrders
	ChannelPositions
	ChannelStrategies
	ChannelAllMarkets
	ChannelSimulation
)

const marketPrefix = "market:"

var fixedChannels = map[string]ChannelKind{
	"orders":      ChannelOrders,
	"positions":   ChannelPositions,
	"strategies":  ChannelStrategies,
	"all_markets": ChannelAllMarkets,
	"simulation":  ChannelSimulation,
}

// Channel is a comparable subscription target. Symbol is only set for
// ChannelMarket and is always upper case.
type Channel struct {
	Kind   ChannelKind
	Symbol string
}

// Market returns the per-symbol market channel for symbol.
func Market(symbol string) Channel {
	return Channel{Kind: ChannelMarket, Symbol: strings.ToUpper(symbol)}
}

var (
	Orders     = Channel{Kind: ChannelOrders}
	Positions  = Channel{Kind: ChannelPositions}
	Strategies = Channel{Kind: ChannelStrategies}
	AllMarkets = Channel{Kind: ChannelAllMarkets}
	Simulation = Channel{Kind: ChannelSimulation}
)

// String returns the canonical channel name.
func (c Channel) String() string {
	switch c.Kind {
	case ChannelMarket:
		return marketPrefix + c.Symbol
	case ChannelOrders:
		return "orders"
	case ChannelPositions:
		return "positions"
	case ChannelStrategies:
		return "strategies"
	case ChannelAllMarkets:
		return "all_markets"
	case ChannelSimulation:
		return "simulation"
	default:
		return "unknown"
	}
}

// ParseChannel parses a channel name. "market:<SYMBOL>" yields a market
// channel with the symbol upper-cased; the fixed names must match exactly.
// Unrecognized names return false and are not an error.
func ParseChannel(name string) (Channel, bool) {
	if symbol, ok := strings.CutPrefix(name, marketPrefix); ok {
		if symbol == "" {
			return Channel{}, false
		}
		return Market(symbol), true
	}

	kind, ok := fixedChannels[name]
	if !ok {
		return Channel{}, false
	}
	return Channel{Kind: kind}, true
}
