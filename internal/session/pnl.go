package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tickfeed/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Unrealized returns the unrealized PnL and its percentage for one position
// at the given price, both rounded to two decimal places.
//
// Long (buy) positions gain when price rises, short (sell) positions when it
// falls. A zero entry price yields a zero percentage rather than a division
// error.
func Unrealized(pos model.Position, latest decimal.Decimal) (pnl, pct decimal.Decimal) {
	diff := latest.Sub(pos.EntryPrice)
	if pos.Side == model.SideSell {
		diff = pos.EntryPrice.Sub(latest)
	}
	pnl = diff.Mul(pos.Amount)

	if pos.EntryPrice.IsZero() {
		return pnl.Round(2), decimal.Zero
	}
	pct = pnl.Div(pos.EntryPrice.Mul(pos.Amount.Abs())).Mul(hundred)
	return pnl.Round(2), pct.Round(2)
}

// buildSnapshot computes the full holdings payload at the given prices.
func buildSnapshot(positions []model.Position, latest func(symbol string) decimal.Decimal, now time.Time) model.PnLSnapshot {
	holdings := make([]model.Holding, 0, len(positions))
	total := decimal.Zero

	for _, pos := range positions {
		price := latest(pos.Symbol)
		pnl, pct := Unrealized(pos, price)

		holdings = append(holdings, model.Holding{
			TransactionID:    pos.ID,
			Symbol:           pos.Symbol,
			Type:             pos.Side,
			Amount:           pos.Amount.InexactFloat64(),
			EntryPrice:       pos.EntryPrice.InexactFloat64(),
			LatestPrice:      price.InexactFloat64(),
			UnrealizedPnl:    pnl.InexactFloat64(),
			UnrealizedPnlPct: pct.InexactFloat64(),
		})
		total = total.Add(pnl)
	}

	return model.PnLSnapshot{
		Holdings:           holdings,
		TotalUnrealizedPnl: total.Round(2).InexactFloat64(),
		UpdatedAt:          now.UTC(),
	}
}

// HoldingsConfig configures a holdings PnL session.
type HoldingsConfig struct {
	Positions      []model.Position
	SeedPrices     map[string]decimal.Decimal // Starting price per symbol (from cache/ledger)
	ThrottleWindow time.Duration
	Now            func() time.Time
	Logger         *slog.Logger
}

// HoldingsSession streams unrealized-PnL snapshots for one client's open
// positions. Its symbol filter is derived from the positions themselves.
type HoldingsSession struct {
	positions []model.Position
	filter    map[string]struct{}
	th        *throttle
	now       func() time.Time
	emit      func(model.PnLSnapshot)
	logger    *slog.Logger

	mu     sync.Mutex
	latest map[string]decimal.Decimal

	closeOnce   sync.Once
	unsubscribe func()
}

// NewHoldings creates a holdings session delivering snapshots through emit.
// Position symbols without a seed price start at their entry price, so their
// PnL reads zero until the first live tick arrives.
func NewHoldings(cfg HoldingsConfig, emit func(model.PnLSnapshot)) *HoldingsSession {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	filter := make(map[string]struct{}, len(cfg.Positions))
	latest := make(map[string]decimal.Decimal, len(cfg.Positions))
	for _, pos := range cfg.Positions {
		filter[pos.Symbol] = struct{}{}
		if _, ok := latest[pos.Symbol]; !ok {
			latest[pos.Symbol] = pos.EntryPrice
		}
	}
	for symbol, price := range cfg.SeedPrices {
		if price.IsPositive() {
			latest[symbol] = price
		}
	}

	return &HoldingsSession{
		positions: cfg.Positions,
		filter:    filter,
		th:        newThrottle(cfg.ThrottleWindow),
		now:       cfg.Now,
		emit:      emit,
		logger:    cfg.Logger,
		latest:    latest,
	}
}

// Start registers the session with the broadcast.
func (h *HoldingsSession) Start(b Broadcast) {
	h.unsubscribe = b.Subscribe(h.onTick)
}

// onTick records the new price for matching symbols and, when the throttle
// admits the symbol, emits a recomputed snapshot across all positions.
// Suppressed ticks still update the price so the next admitted delivery
// carries the latest state.
func (h *HoldingsSession) onTick(tick model.Tick) {
	if _, ok := h.filter[tick.Symbol]; !ok {
		return
	}

	h.mu.Lock()
	h.latest[tick.Symbol] = tick.Price
	h.mu.Unlock()

	if !h.th.admit(tick.Symbol, h.now()) {
		return
	}
	h.emit(h.snapshot())
}

// snapshot builds the payload from the current per-symbol prices.
func (h *HoldingsSession) snapshot() model.PnLSnapshot {
	h.mu.Lock()
	prices := make(map[string]decimal.Decimal, len(h.latest))
	for s, p := range h.latest {
		prices[s] = p
	}
	h.mu.Unlock()

	return buildSnapshot(h.positions, func(symbol string) decimal.Decimal {
		return prices[symbol]
	}, h.now())
}

// Close deregisters from the broadcast. Safe to call more than once.
func (h *HoldingsSession) Close() {
	h.closeOnce.Do(func() {
		if h.unsubscribe != nil {
			h.unsubscribe()
		}
	})
}
