package feed

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"tickfeed/internal/model"
)

type fakeLedger struct {
	mu       sync.Mutex
	upserted []model.Candle
}

func (f *fakeLedger) Symbols(ctx context.Context) ([]string, error) {
	return []string{"AAPL"}, nil
}

func (f *fakeLedger) UpsertCandle(ctx context.Context, c model.Candle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, c)
	return nil
}

func (f *fakeLedger) LatestCandle(ctx context.Context, symbol string) (model.Candle, bool, error) {
	return model.Candle{}, false, nil
}

func (f *fakeLedger) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserted)
}

func TestEngine_CacheUpdatedBeforeFanout(t *testing.T) {
	e := NewEngine(ConnectorConfig{}, &fakeLedger{}, testLogger())

	var seen model.LatestPrice
	unsubscribe := e.Hub().Subscribe(func(tk model.Tick) {
		seen = e.Prices().Latest(context.Background(), tk.Symbol)
	})
	defer unsubscribe()

	e.handleTick(model.Tick{
		Symbol:    "AAPL",
		Price:     decimal.RequireFromString("150.25"),
		Volume:    decimal.NewFromInt(10),
		Timestamp: 1705328160000,
	})

	if !seen.Price.Equal(decimal.RequireFromString("150.25")) {
		t.Errorf("price seen by subscriber = %s, want 150.25 (cache updated first)", seen.Price)
	}
}

func TestEngine_StopFlushesOpenCandle(t *testing.T) {
	led := &fakeLedger{}
	e := NewEngine(ConnectorConfig{}, led, testLogger())

	e.handleTick(model.Tick{
		Symbol:    "AAPL",
		Price:     decimal.NewFromInt(100),
		Volume:    decimal.NewFromInt(1),
		Timestamp: 1705328160000,
	})

	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() = %v", err)
	}

	if got := led.upsertCount(); got != 1 {
		t.Errorf("persisted candles = %d, want 1 (open candle flushed on stop)", got)
	}
}
