package feed

import (
	"context"
	"log/slog"

	"tickfeed/internal/candle"
	"tickfeed/internal/hub"
	"tickfeed/internal/model"
	"tickfeed/internal/prices"
)

// Ledger is everything the engine needs from persistent storage.
// Implemented by ledger.Postgres.
type Ledger interface {
	Catalog
	candle.Store
	prices.CandleSource
}

// Engine composes the connector with the tick consumers. Every tick flows
// through the aggregator, then the latest-price cache, then the fan-out hub.
type Engine struct {
	connector  *Connector
	aggregator *candle.Aggregator
	cache      *prices.Cache
	hub        *hub.Hub
	logger     *slog.Logger
}

// NewEngine wires a connector, aggregator, cache, and hub around one ledger.
func NewEngine(cfg ConnectorConfig, ledger Ledger, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		aggregator: candle.NewAggregator(ledger, logger.With("component", "candle")),
		cache:      prices.NewCache(ledger, logger.With("component", "prices")),
		hub:        hub.New(logger.With("component", "hub")),
		logger:     logger,
	}
	e.connector = NewConnector(cfg, ledger, e.handleTick, logger.With("component", "connector"))

	return e
}

// handleTick runs one tick through the consumers in dispatch order.
func (e *Engine) handleTick(tick model.Tick) {
	e.aggregator.Process(tick)
	e.cache.Update(tick)
	e.hub.Publish(tick)
}

// Start begins connecting to the upstream.
func (e *Engine) Start(ctx context.Context) error {
	return e.connector.Start(ctx)
}

// Stop shuts down the connector and flushes in-progress candles.
func (e *Engine) Stop(ctx context.Context) error {
	if err := e.connector.Stop(ctx); err != nil {
		e.logger.Warn("connector stop", "error", err)
	}
	return e.aggregator.Close(ctx)
}

// Hub returns the tick broadcast for downstream sessions.
func (e *Engine) Hub() *hub.Hub {
	return e.hub
}

// Prices returns the latest-price cache.
func (e *Engine) Prices() *prices.Cache {
	return e.cache
}

// State returns the connector's lifecycle state.
func (e *Engine) State() State {
	return e.connector.State()
}

// Stats returns connector statistics for health reporting.
func (e *Engine) Stats() ConnectorStats {
	return e.connector.Stats()
}
