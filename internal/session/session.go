package session

import (
	"log/slog"
	"sync"
	"time"

	"tickfeed/internal/model"
)

// Broadcast is the subscription surface of the fan-out hub.
type Broadcast interface {
	Subscribe(fn func(model.Tick)) (unsubscribe func())
}

// throttle enforces a per-symbol minimum delivery interval.
type throttle struct {
	window time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

func newThrottle(window time.Duration) *throttle {
	return &throttle{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// admit reports whether a delivery for symbol may go out at now, and records
// it if so. A zero window admits everything.
func (t *throttle) admit(symbol string, now time.Time) bool {
	if t.window <= 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.last[symbol]; ok && now.Sub(last) < t.window {
		return false
	}
	t.last[symbol] = now
	return true
}

// Config configures a raw tick session.
type Config struct {
	Symbols        []string      // Allow-list; ticks for other symbols are dropped
	ThrottleWindow time.Duration // 0 disables throttling
	Now            func() time.Time
	Logger         *slog.Logger
}

// Session streams filtered, throttled tick payloads to one client.
type Session struct {
	filter map[string]struct{}
	th     *throttle
	now    func() time.Time
	emit   func(model.TickUpdate)
	logger *slog.Logger

	closeOnce   sync.Once
	unsubscribe func()
}

// New creates a session that delivers payloads through emit.
func New(cfg Config, emit func(model.TickUpdate)) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	filter := make(map[string]struct{}, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		filter[s] = struct{}{}
	}

	return &Session{
		filter: filter,
		th:     newThrottle(cfg.ThrottleWindow),
		now:    cfg.Now,
		emit:   emit,
		logger: cfg.Logger,
	}
}

// Start registers the session with the broadcast.
func (s *Session) Start(b Broadcast) {
	s.unsubscribe = b.Subscribe(s.onTick)
}

// onTick applies the filter and throttle, emitting admitted ticks.
func (s *Session) onTick(tick model.Tick) {
	if _, ok := s.filter[tick.Symbol]; !ok {
		return
	}
	if !s.th.admit(tick.Symbol, s.now()) {
		return
	}
	s.emit(model.NewTickUpdate(tick))
}

// Close deregisters from the broadcast. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
}
