package candle

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tickfeed/internal/model"
)

// memStore collects upserted candles keyed by (symbol, bucket_start).
type memStore struct {
	mu      sync.Mutex
	candles map[string]map[int64]model.Candle
	order   []model.Candle
	err     error
}

func newMemStore() *memStore {
	return &memStore{candles: make(map[string]map[int64]model.Candle)}
}

func (s *memStore) UpsertCandle(_ context.Context, c model.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.candles[c.Symbol] == nil {
		s.candles[c.Symbol] = make(map[int64]model.Candle)
	}
	s.candles[c.Symbol][c.BucketStart] = c
	s.order = append(s.order, c)
	return nil
}

func (s *memStore) persisted() []model.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Candle, len(s.order))
	copy(out, s.order)
	return out
}

func tick(symbol string, price, volume string, ts int64) model.Tick {
	return model.Tick{
		Symbol:    symbol,
		Price:     decimal.RequireFromString(price),
		Volume:    decimal.RequireFromString(volume),
		Timestamp: ts,
	}
}

const minute0 = int64(1705328160000) // minute-aligned

func closeAndWait(t *testing.T, a *Aggregator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestAggregator_SingleBucket(t *testing.T) {
	store := newMemStore()
	a := NewAggregator(store, slog.Default())

	a.Process(tick("AAPL", "100", "1", minute0))
	a.Process(tick("AAPL", "105", "2", minute0+10_000))
	a.Process(tick("AAPL", "95", "3", minute0+20_000))
	a.Process(tick("AAPL", "101", "0", minute0+30_000))

	cur, ok := a.CurrentCandle("AAPL")
	if !ok {
		t.Fatal("expected current candle for AAPL")
	}
	if cur.BucketStart != minute0 {
		t.Errorf("BucketStart = %d, want %d", cur.BucketStart, minute0)
	}
	if !cur.Open.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Open = %s, want 100", cur.Open)
	}
	if !cur.High.Equal(decimal.NewFromInt(105)) {
		t.Errorf("High = %s, want 105", cur.High)
	}
	if !cur.Low.Equal(decimal.NewFromInt(95)) {
		t.Errorf("Low = %s, want 95", cur.Low)
	}
	if !cur.Close.Equal(decimal.NewFromInt(101)) {
		t.Errorf("Close = %s, want 101", cur.Close)
	}
	if !cur.Volume.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Volume = %s, want 6", cur.Volume)
	}

	// Nothing persisted until rollover.
	if got := len(store.persisted()); got != 0 {
		t.Errorf("persisted = %d candles, want 0", got)
	}
}

func TestAggregator_RolloverPersistsClosedCandle(t *testing.T) {
	store := newMemStore()
	a := NewAggregator(store, slog.Default())

	a.Process(tick("AAPL", "100", "1", minute0))
	a.Process(tick("AAPL", "110", "1", minute0+model.MinuteMs))
	closeAndWait(t, a)

	if got := len(store.persisted()); got != 2 { // closed bucket + final flush of the new one
		t.Fatalf("persisted = %d candles, want 2", got)
	}

	store.mu.Lock()
	closed, ok := store.candles["AAPL"][minute0]
	cur, ok2 := store.candles["AAPL"][minute0+model.MinuteMs]
	store.mu.Unlock()

	if !ok {
		t.Fatalf("closed bucket %d not persisted", minute0)
	}
	if !closed.Close.Equal(decimal.NewFromInt(100)) {
		t.Errorf("closed Close = %s, want 100", closed.Close)
	}
	if !ok2 {
		t.Fatalf("flushed bucket %d not persisted", minute0+model.MinuteMs)
	}
	if !cur.Open.Equal(decimal.NewFromInt(110)) {
		t.Errorf("new Open = %s, want 110", cur.Open)
	}
}

func TestAggregator_CandleInvariants(t *testing.T) {
	store := newMemStore()
	a := NewAggregator(store, slog.Default())

	prices := []string{"100", "103.5", "99.1", "107", "95.25", "101"}
	for i, p := range prices {
		a.Process(tick("BINANCE:BTCUSDT", p, "0.5", minute0+int64(i)*5_000))
	}
	a.Process(tick("BINANCE:BTCUSDT", "102", "1", minute0+model.MinuteMs))
	closeAndWait(t, a)

	for _, c := range store.persisted() {
		if c.BucketStart%model.MinuteMs != 0 {
			t.Errorf("BucketStart %d not minute-aligned", c.BucketStart)
		}
		if c.High.LessThan(c.Open) || c.High.LessThan(c.Close) {
			t.Errorf("high %s < max(open %s, close %s)", c.High, c.Open, c.Close)
		}
		if c.Low.GreaterThan(c.Open) || c.Low.GreaterThan(c.Close) {
			t.Errorf("low %s > min(open %s, close %s)", c.Low, c.Open, c.Close)
		}
		if c.Volume.IsNegative() {
			t.Errorf("negative volume %s", c.Volume)
		}
	}
}

func TestAggregator_SymbolsAreIndependent(t *testing.T) {
	store := newMemStore()
	a := NewAggregator(store, slog.Default())

	a.Process(tick("AAPL", "100", "1", minute0))
	a.Process(tick("TSLA", "200", "1", minute0))
	a.Process(tick("AAPL", "101", "1", minute0+model.MinuteMs))

	// TSLA still in its first bucket; only AAPL rolled over.
	closeAndWait(t, a)

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.candles["AAPL"]) != 2 {
		t.Errorf("AAPL persisted buckets = %d, want 2", len(store.candles["AAPL"]))
	}
	if len(store.candles["TSLA"]) != 1 {
		t.Errorf("TSLA persisted buckets = %d, want 1", len(store.candles["TSLA"]))
	}
}

func TestAggregator_UpsertIdempotence(t *testing.T) {
	store := newMemStore()

	c := model.Candle{
		Symbol:      "AAPL",
		Timeframe:   model.Timeframe1m,
		BucketStart: minute0,
		Open:        decimal.NewFromInt(100),
		High:        decimal.NewFromInt(110),
		Low:         decimal.NewFromInt(90),
		Close:       decimal.NewFromInt(105),
		Volume:      decimal.NewFromInt(7),
	}
	if err := store.UpsertCandle(context.Background(), c); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	c.Close = decimal.NewFromInt(106)
	if err := store.UpsertCandle(context.Background(), c); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.candles["AAPL"]) != 1 {
		t.Fatalf("stored records = %d, want 1", len(store.candles["AAPL"]))
	}
	if got := store.candles["AAPL"][minute0].Close; !got.Equal(decimal.NewFromInt(106)) {
		t.Errorf("stored Close = %s, want 106 (latest values win)", got)
	}
}

func TestAggregator_PersistFailureDoesNotBlockTicks(t *testing.T) {
	store := newMemStore()
	store.err = context.DeadlineExceeded
	a := NewAggregator(store, slog.Default())

	a.Process(tick("AAPL", "100", "1", minute0))
	a.Process(tick("AAPL", "101", "1", minute0+model.MinuteMs))
	a.Process(tick("AAPL", "102", "1", minute0+2*model.MinuteMs))

	cur, ok := a.CurrentCandle("AAPL")
	if !ok {
		t.Fatal("expected current candle after failed persists")
	}
	if cur.BucketStart != minute0+2*model.MinuteMs {
		t.Errorf("BucketStart = %d, want %d", cur.BucketStart, minute0+2*model.MinuteMs)
	}
}

func TestAggregator_LateTickOpensNewBucket(t *testing.T) {
	store := newMemStore()
	a := NewAggregator(store, slog.Default())

	a.Process(tick("AAPL", "100", "1", minute0+model.MinuteMs))
	// Late tick from the previous minute: taken at face value, it closes the
	// current bucket and opens the older one as current.
	a.Process(tick("AAPL", "99", "1", minute0))

	cur, ok := a.CurrentCandle("AAPL")
	if !ok {
		t.Fatal("expected current candle")
	}
	if cur.BucketStart != minute0 {
		t.Errorf("BucketStart = %d, want %d", cur.BucketStart, minute0)
	}
	if !cur.Open.Equal(decimal.NewFromInt(99)) {
		t.Errorf("Open = %s, want 99", cur.Open)
	}
}
