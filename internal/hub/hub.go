package hub

import (
	"log/slog"
	"sync"

	"tickfeed/internal/model"
)

// Hub is a registry of subscriber callbacks for the tick broadcast.
//
// Safe for concurrent use: Subscribe, the returned unsubscribe func, and
// Publish may all be called from different goroutines.
type Hub struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID int64
	subs   map[int64]func(model.Tick)
}

// New creates an empty hub.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		subs:   make(map[int64]func(model.Tick)),
	}
}

// Subscribe adds a callback to the broadcast set and returns a function that
// removes it. The returned function is safe to call more than once.
func (h *Hub) Subscribe(fn func(model.Tick)) (unsubscribe func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// Publish invokes every registered callback with the tick. Iteration works on
// a snapshot of the subscriber set, so callbacks may subscribe or unsubscribe
// without deadlocking the broadcast.
func (h *Hub) Publish(tick model.Tick) {
	h.mu.RLock()
	snapshot := make([]func(model.Tick), 0, len(h.subs))
	for _, fn := range h.subs {
		snapshot = append(snapshot, fn)
	}
	h.mu.RUnlock()

	for _, fn := range snapshot {
		h.invoke(fn, tick)
	}
}

// invoke runs one callback, containing any panic it raises.
func (h *Hub) invoke(fn func(model.Tick), tick model.Tick) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("subscriber callback panicked",
				"symbol", tick.Symbol,
				"panic", r,
			)
		}
	}()
	fn(tick)
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
