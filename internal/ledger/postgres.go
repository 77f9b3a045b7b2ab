package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tickfeed/internal/config"
	"tickfeed/internal/model"
)

// Postgres is the pgx-backed ledger implementation.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}

	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool, logger: logger}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ping verifies the connection is healthy.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Symbols returns the instrument catalog as an ordered symbol list.
func (p *Postgres) Symbols(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT symbol FROM instruments ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("query instruments: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		symbols = append(symbols, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instruments: %w", err)
	}

	return symbols, nil
}

// UpsertCandle inserts a closed candle, overwriting the OHLCV fields if a row
// for (symbol, bucket_start) already exists. Idempotent under replay.
func (p *Postgres) UpsertCandle(ctx context.Context, c model.Candle) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO candles (symbol, bucket_start, timeframe, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, bucket_start) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`, c.Symbol, c.BucketStart, c.Timeframe, c.Open, c.High, c.Low, c.Close, c.Volume)
	if err != nil {
		return fmt.Errorf("upsert candle %s@%d: %w", c.Symbol, c.BucketStart, err)
	}
	return nil
}

// LatestCandle returns the most recently persisted candle for a symbol.
// The second return value is false when the symbol has no candles.
func (p *Postgres) LatestCandle(ctx context.Context, symbol string) (model.Candle, bool, error) {
	var c model.Candle
	err := p.pool.QueryRow(ctx, `
		SELECT symbol, bucket_start, timeframe, open, high, low, close, volume
		FROM candles
		WHERE symbol = $1
		ORDER BY bucket_start DESC
		LIMIT 1
	`, symbol).Scan(&c.Symbol, &c.BucketStart, &c.Timeframe, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Candle{}, false, nil
	}
	if err != nil {
		return model.Candle{}, false, fmt.Errorf("query latest candle for %s: %w", symbol, err)
	}
	return c, true, nil
}

// RecentCandles returns up to limit most recent candles for a symbol,
// oldest first.
func (p *Postgres) RecentCandles(ctx context.Context, symbol string, limit int) ([]model.Candle, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT symbol, bucket_start, timeframe, open, high, low, close, volume
		FROM candles
		WHERE symbol = $1
		ORDER BY bucket_start DESC
		LIMIT $2
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query candles for %s: %w", symbol, err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.Symbol, &c.BucketStart, &c.Timeframe, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candles: %w", err)
	}

	// Reverse to chronological order for chart consumers.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	return candles, nil
}

// OpenPositions returns a user's open transactions joined with their symbols.
func (p *Postgres) OpenPositions(ctx context.Context, userID string) ([]model.Position, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT t.id, i.symbol, t.type, t.amount, t.entry_price
		FROM transactions t
		JOIN instruments i ON i.id = t.instrument_id
		WHERE t.user_id = $1 AND t.status = 'open'
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query open positions for %s: %w", userID, err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var pos model.Position
		if err := rows.Scan(&pos.ID, &pos.Symbol, &pos.Side, &pos.Amount, &pos.EntryPrice); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}

	return positions, nil
}
