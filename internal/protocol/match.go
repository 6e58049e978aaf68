package protocol

import "strings"

// Matches reports whether an event published on the bus belongs to ch.
// Unicast events never match any channel.
func Matches(ch Channel, ev Event) bool {
	switch ch.Kind {
	case ChannelMarket:
		switch e := ev.(type) {
		case Ticker:
			return strings.ToUpper(e.Symbol) == ch.Symbol
		case Trade:
			return strings.ToUpper(e.Symbol) == ch.Symbol
		}
	case ChannelOrders:
		_, ok := ev.(OrderUpdate)
		return ok
	case ChannelPositions:
		_, ok := ev.(PositionUpdate)
		return ok
	case ChannelStrategies:
		_, ok := ev.(StrategyUpdate)
		return ok
	case ChannelAllMarkets:
		// Trades stay on per-symbol channels only.
		_, ok := ev.(Ticker)
		return ok
	case ChannelSimulation:
		_, ok := ev.(SimulationUpdate)
		return ok
	}
	return false
}
