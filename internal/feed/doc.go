// Package feed owns the single upstream websocket connection.
//
// Client wraps one gorilla/websocket connection with buffered message and
// error channels. Connector drives the connect/subscribe/reconnect state
// machine on top of it: fetch the instrument catalog, dial, send one
// subscribe frame per symbol, then pump trade messages into the dispatch
// pipeline. Engine composes the connector with the candle aggregator, the
// latest-price cache, and the fan-out hub.
package feed
