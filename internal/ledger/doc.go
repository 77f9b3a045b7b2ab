// Package ledger provides the PostgreSQL-backed trade ledger.
//
// The ledger is the engine's only durable store:
//   - instruments: the catalog of tradable symbols the feed subscribes to
//   - candles: closed one-minute OHLCV buckets, keyed (symbol, bucket_start)
//   - transactions: user trades; only open rows are read here, for PnL streams
//
// Candle writes are upserts so replaying a bucket is idempotent.
package ledger
