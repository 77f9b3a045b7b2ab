package hub

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"tickfeed/internal/model"
)

func testTick() model.Tick {
	return model.Tick{
		Symbol:    "AAPL",
		Price:     decimal.RequireFromString("190.25"),
		Volume:    decimal.NewFromInt(10),
		Timestamp: 1705328160000,
	}
}

func TestHub_PublishReachesAllSubscribers(t *testing.T) {
	h := New(slog.Default())

	const n = 5
	var mu sync.Mutex
	got := make([]model.Tick, 0, n)

	for i := 0; i < n; i++ {
		h.Subscribe(func(tick model.Tick) {
			mu.Lock()
			got = append(got, tick)
			mu.Unlock()
		})
	}

	tick := testTick()
	h.Publish(tick)

	if len(got) != n {
		t.Fatalf("deliveries = %d, want %d", len(got), n)
	}
	for i, g := range got {
		if g.Symbol != tick.Symbol || !g.Price.Equal(tick.Price) {
			t.Errorf("delivery %d = %+v, want %+v", i, g, tick)
		}
	}
}

func TestHub_PanickingSubscriberIsIsolated(t *testing.T) {
	h := New(slog.Default())

	var before, after int
	h.Subscribe(func(model.Tick) { before++ })
	h.Subscribe(func(model.Tick) { panic("boom") })
	h.Subscribe(func(model.Tick) { after++ })

	h.Publish(testTick())
	h.Publish(testTick())

	if before != 2 {
		t.Errorf("subscriber before panicker got %d deliveries, want 2", before)
	}
	if after != 2 {
		t.Errorf("subscriber after panicker got %d deliveries, want 2", after)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h := New(slog.Default())

	var calls int
	unsubscribe := h.Subscribe(func(model.Tick) { calls++ })

	h.Publish(testTick())
	unsubscribe()
	h.Publish(testTick())

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if h.Len() != 0 {
		t.Errorf("Len() = %d, want 0", h.Len())
	}

	// Double-unsubscribe is a no-op.
	unsubscribe()
	if h.Len() != 0 {
		t.Errorf("Len() after double unsubscribe = %d, want 0", h.Len())
	}
}

func TestHub_SubscribeAfterPublishSeesNothing(t *testing.T) {
	h := New(slog.Default())
	h.Publish(testTick())

	var calls int
	h.Subscribe(func(model.Tick) { calls++ })

	if calls != 0 {
		t.Errorf("late subscriber got %d deliveries, want 0", calls)
	}
}

func TestHub_ConcurrentSubscribePublish(t *testing.T) {
	h := New(slog.Default())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsub := h.Subscribe(func(model.Tick) {})
			unsub()
		}()
		go func() {
			defer wg.Done()
			h.Publish(testTick())
		}()
	}
	wg.Wait()

	if h.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after all unsubscribes", h.Len())
	}
}
