// Package session adapts the raw tick broadcast into per-client streams.
//
// A Session filters ticks by a symbol allow-list and rate-limits delivery
// per symbol. The holdings variant additionally recomputes unrealized PnL
// across a client's open positions on every admitted tick.
//
// Sessions own their hub registration: Close deregisters exactly once and
// is safe to call repeatedly.
package session
