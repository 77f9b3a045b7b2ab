package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Feed Types
// -----------------------------------------------------------------------------

// MinuteMs is the one-minute candle timeframe in milliseconds.
const MinuteMs int64 = 60_000

// Timeframe1m identifies the one-minute candle timeframe.
const Timeframe1m = "1m"

// Tick is a single trade event from the upstream feed.
type Tick struct {
	Symbol    string          // Instrument symbol (e.g., "BINANCE:BTCUSDT")
	Price     decimal.Decimal // Trade price
	Volume    decimal.Decimal // Trade volume (may be zero)
	Timestamp int64           // Exchange timestamp (ms since epoch)
}

// BucketStart returns the tick's one-minute bucket start, floor-aligned.
func (t Tick) BucketStart() int64 {
	return t.Timestamp / MinuteMs * MinuteMs
}

// Candle is an aggregated OHLCV bucket for one symbol.
//
// A candle is mutable only while it is the current bucket for its symbol;
// once superseded by a newer bucket start it is persisted and never touched
// again.
type Candle struct {
	Symbol      string          // Instrument symbol
	Timeframe   string          // Always "1m"
	BucketStart int64           // Bucket start (ms since epoch, minute-aligned)
	Open        decimal.Decimal // First trade price in the bucket
	High        decimal.Decimal // Highest trade price
	Low         decimal.Decimal // Lowest trade price
	Close       decimal.Decimal // Most recent trade price
	Volume      decimal.Decimal // Cumulative volume
}

// LatestPrice is the most recent observation for one symbol.
type LatestPrice struct {
	Price      decimal.Decimal // Last trade price
	Volume     decimal.Decimal // Last trade volume
	ObservedAt time.Time       // Exchange time of the observation
}

// -----------------------------------------------------------------------------
// Position / PnL Types
// -----------------------------------------------------------------------------

// Position sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Position is an open trade read from the ledger.
type Position struct {
	ID         uuid.UUID       // Transaction ID
	Symbol     string          // Instrument symbol
	Side       string          // "buy" (long) or "sell" (short)
	Amount     decimal.Decimal // Position size
	EntryPrice decimal.Decimal // Fill price at open
}

// Holding is one position's unrealized PnL row in a snapshot payload.
type Holding struct {
	TransactionID    uuid.UUID `json:"transactionId"`
	Symbol           string    `json:"symbol"`
	Type             string    `json:"type"`
	Amount           float64   `json:"amount"`
	EntryPrice       float64   `json:"entryPrice"`
	LatestPrice      float64   `json:"latestPrice"`
	UnrealizedPnl    float64   `json:"unrealizedPnl"`
	UnrealizedPnlPct float64   `json:"unrealizedPnlPct"`
}

// PnLSnapshot is the holdings payload streamed to a client.
type PnLSnapshot struct {
	Holdings           []Holding `json:"holdings"`
	TotalUnrealizedPnl float64   `json:"totalUnrealizedPnl"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// TickUpdate is the raw-tick payload streamed to a client.
type TickUpdate struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTickUpdate converts a tick into its transport payload.
func NewTickUpdate(t Tick) TickUpdate {
	return TickUpdate{
		Symbol:    t.Symbol,
		Price:     t.Price.InexactFloat64(),
		Volume:    t.Volume.InexactFloat64(),
		Timestamp: time.UnixMilli(t.Timestamp).UTC(),
	}
}
