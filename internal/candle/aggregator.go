package candle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tickfeed/internal/model"
)

// persistTimeout bounds a single candle upsert.
const persistTimeout = 10 * time.Second

// Store persists closed candles. Implemented by ledger.Postgres.
type Store interface {
	UpsertCandle(ctx context.Context, c model.Candle) error
}

// Aggregator converts a tick stream into closed, persisted candles.
type Aggregator struct {
	store  Store
	logger *slog.Logger

	mu      sync.Mutex
	current map[string]*model.Candle

	wg sync.WaitGroup // in-flight persists
}

// NewAggregator creates an aggregator writing closed candles to store.
func NewAggregator(store Store, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		store:   store,
		logger:  logger,
		current: make(map[string]*model.Candle),
	}
}

// Process folds one tick into the current candle for its symbol, rolling the
// bucket over when the tick's minute differs from the current candle's.
//
// Ticks are taken at face value: a late tick whose bucket start differs from
// the current one closes the current candle and opens a new bucket, even if
// its timestamp is older. There is no reordering buffer.
func (a *Aggregator) Process(tick model.Tick) {
	bucketStart := tick.BucketStart()

	a.mu.Lock()
	cur, ok := a.current[tick.Symbol]
	if !ok || cur.BucketStart != bucketStart {
		var closed *model.Candle
		if ok {
			closed = cur
		}
		a.current[tick.Symbol] = &model.Candle{
			Symbol:      tick.Symbol,
			Timeframe:   model.Timeframe1m,
			BucketStart: bucketStart,
			Open:        tick.Price,
			High:        tick.Price,
			Low:         tick.Price,
			Close:       tick.Price,
			Volume:      tick.Volume,
		}
		a.mu.Unlock()

		if closed != nil {
			a.persist(*closed)
		}
		return
	}

	if tick.Price.GreaterThan(cur.High) {
		cur.High = tick.Price
	}
	if tick.Price.LessThan(cur.Low) {
		cur.Low = tick.Price
	}
	cur.Close = tick.Price
	cur.Volume = cur.Volume.Add(tick.Volume)
	a.mu.Unlock()
}

// CurrentCandle returns a copy of the in-progress candle for a symbol.
func (a *Aggregator) CurrentCandle(symbol string) (model.Candle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur, ok := a.current[symbol]
	if !ok {
		return model.Candle{}, false
	}
	return *cur, true
}

// Close flushes every in-progress candle to the ledger and waits for all
// in-flight persists, bounded by ctx.
func (a *Aggregator) Close(ctx context.Context) error {
	a.mu.Lock()
	remaining := make([]model.Candle, 0, len(a.current))
	for _, cur := range a.current {
		remaining = append(remaining, *cur)
	}
	a.current = make(map[string]*model.Candle)
	a.mu.Unlock()

	for _, c := range remaining {
		a.persist(c)
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		a.logger.Warn("candle flush timed out", "pending", len(remaining))
		return ctx.Err()
	}
}

// persist upserts a closed candle in the background. Failures are logged and
// swallowed so tick processing is never blocked by the ledger.
func (a *Aggregator) persist(c model.Candle) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := a.store.UpsertCandle(ctx, c); err != nil {
			a.logger.Error("candle persist failed",
				"symbol", c.Symbol,
				"bucket_start", c.BucketStart,
				"error", err,
			)
		}
	}()
}
