package prices

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tickfeed/internal/model"
)

// CandleSource reads persisted candles for cache-miss fallback.
// Implemented by ledger.Postgres.
type CandleSource interface {
	LatestCandle(ctx context.Context, symbol string) (model.Candle, bool, error)
}

// Sentinel returns the "no price available" entry.
func Sentinel() model.LatestPrice {
	return model.LatestPrice{
		Price:  decimal.NewFromInt(-1),
		Volume: decimal.NewFromInt(-1),
	}
}

// IsSentinel reports whether an entry is the "no price available" value.
func IsSentinel(lp model.LatestPrice) bool {
	return lp.Price.IsNegative()
}

// Cache holds the most recent price observation per symbol.
//
// Update is called only from the feed's tick handler; Latest may be called
// concurrently from any goroutine.
type Cache struct {
	source CandleSource
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]model.LatestPrice
}

// NewCache creates an empty cache with a ledger fallback.
func NewCache(source CandleSource, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		source:  source,
		logger:  logger,
		entries: make(map[string]model.LatestPrice),
	}
}

// Update unconditionally overwrites the entry for the tick's symbol.
func (c *Cache) Update(tick model.Tick) {
	entry := model.LatestPrice{
		Price:      tick.Price,
		Volume:     tick.Volume,
		ObservedAt: time.UnixMilli(tick.Timestamp).UTC(),
	}

	c.mu.Lock()
	c.entries[tick.Symbol] = entry
	c.mu.Unlock()
}

// Latest returns the cached entry for a symbol, falling back to the most
// recent persisted candle's close on a miss. Returns the sentinel when the
// symbol has never ticked and has no candle history.
func (c *Cache) Latest(ctx context.Context, symbol string) model.LatestPrice {
	c.mu.RLock()
	entry, ok := c.entries[symbol]
	c.mu.RUnlock()
	if ok {
		return entry
	}

	candle, found, err := c.source.LatestCandle(ctx, symbol)
	if err != nil {
		c.logger.Warn("latest candle lookup failed", "symbol", symbol, "error", err)
		return Sentinel()
	}
	if !found {
		return Sentinel()
	}

	return model.LatestPrice{
		Price:      candle.Close,
		Volume:     candle.Volume,
		ObservedAt: time.UnixMilli(candle.BucketStart).UTC(),
	}
}

// Len returns the number of cached symbols.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
