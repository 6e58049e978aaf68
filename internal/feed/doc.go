// Package feed produces market data for the bus.
//
// Simulator is the demand-driven mock generator: it only prices symbols
// some session has subscribed to. Relay republishes an upstream exchange
// stream, and WebSocketStream is the upstream stream read from a remote
// market-data gateway.
package feed
