// Package candle aggregates the tick stream into one-minute OHLCV candles.
//
// One in-progress candle exists per symbol. When a tick lands in a newer
// bucket the previous candle is closed and persisted asynchronously; tick
// processing never waits on the ledger. Persistence failures are logged and
// swallowed, losing at most one bucket.
package candle
