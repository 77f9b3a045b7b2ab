// Package prices implements the latest-price cache.
//
// One entry per symbol, overwritten on every tick (last write wins). A miss
// falls back to the most recent persisted candle's close; when neither
// exists the sentinel entry (price = -1) is returned so callers can treat
// "no price available" as a normal, checkable outcome.
package prices
