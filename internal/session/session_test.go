package session

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tickfeed/internal/hub"
	"tickfeed/internal/model"
)

func tick(symbol, price string, ts int64) model.Tick {
	return model.Tick{
		Symbol:    symbol,
		Price:     decimal.RequireFromString(price),
		Volume:    decimal.NewFromInt(1),
		Timestamp: ts,
	}
}

// fakeClock advances manually for throttle tests.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestSession_FiltersSymbols(t *testing.T) {
	h := hub.New(nil)

	var got []model.TickUpdate
	s := New(Config{Symbols: []string{"AAPL"}}, func(u model.TickUpdate) {
		got = append(got, u)
	})
	s.Start(h)
	defer s.Close()

	h.Publish(tick("AAPL", "100", 1705328160000))
	h.Publish(tick("TSLA", "200", 1705328160000))
	h.Publish(tick("AAPL", "101", 1705328161000))

	if len(got) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(got))
	}
	for _, u := range got {
		if u.Symbol != "AAPL" {
			t.Errorf("delivered symbol %q, want AAPL", u.Symbol)
		}
	}
}

func TestSession_Throttle(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1705328160000)}
	h := hub.New(nil)

	var deliveries int
	s := New(Config{
		Symbols:        []string{"AAPL"},
		ThrottleWindow: time.Second,
		Now:            clock.now,
	}, func(model.TickUpdate) { deliveries++ })
	s.Start(h)
	defer s.Close()

	h.Publish(tick("AAPL", "100", 1))
	if deliveries != 1 {
		t.Fatalf("deliveries = %d, want 1", deliveries)
	}

	// Inside the window: suppressed.
	clock.advance(500 * time.Millisecond)
	h.Publish(tick("AAPL", "101", 2))
	if deliveries != 1 {
		t.Errorf("deliveries = %d, want 1 (tick inside window suppressed)", deliveries)
	}

	// At the window boundary: delivered.
	clock.advance(500 * time.Millisecond)
	h.Publish(tick("AAPL", "102", 3))
	if deliveries != 2 {
		t.Errorf("deliveries = %d, want 2 (tick at window boundary delivered)", deliveries)
	}
}

func TestSession_ThrottleIsPerSymbol(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1705328160000)}
	h := hub.New(nil)

	perSymbol := make(map[string]int)
	s := New(Config{
		Symbols:        []string{"AAPL", "TSLA"},
		ThrottleWindow: time.Second,
		Now:            clock.now,
	}, func(u model.TickUpdate) { perSymbol[u.Symbol]++ })
	s.Start(h)
	defer s.Close()

	h.Publish(tick("AAPL", "100", 1))
	h.Publish(tick("TSLA", "200", 2))

	if perSymbol["AAPL"] != 1 || perSymbol["TSLA"] != 1 {
		t.Errorf("perSymbol = %v, want one delivery each", perSymbol)
	}
}

func TestSession_ZeroWindowDisablesThrottle(t *testing.T) {
	h := hub.New(nil)

	var deliveries int
	s := New(Config{Symbols: []string{"AAPL"}}, func(model.TickUpdate) { deliveries++ })
	s.Start(h)
	defer s.Close()

	for i := 0; i < 10; i++ {
		h.Publish(tick("AAPL", "100", int64(i)))
	}
	if deliveries != 10 {
		t.Errorf("deliveries = %d, want 10", deliveries)
	}
}

func TestSession_CloseDeregisters(t *testing.T) {
	h := hub.New(nil)

	var deliveries int
	s := New(Config{Symbols: []string{"AAPL"}}, func(model.TickUpdate) { deliveries++ })
	s.Start(h)

	h.Publish(tick("AAPL", "100", 1))
	s.Close()
	h.Publish(tick("AAPL", "101", 2))

	if deliveries != 1 {
		t.Errorf("deliveries = %d, want 1 after Close", deliveries)
	}
	if h.Len() != 0 {
		t.Errorf("hub.Len() = %d, want 0 after Close", h.Len())
	}

	// Double-teardown is a no-op.
	s.Close()
	if h.Len() != 0 {
		t.Errorf("hub.Len() = %d, want 0 after double Close", h.Len())
	}
}
