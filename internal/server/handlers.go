package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tickfeed/internal/model"
	"tickfeed/internal/prices"
	"tickfeed/internal/session"
)

const (
	defaultCandleLimit = 60
	maxCandleLimit     = 1000

	// streamBuffer absorbs bursts for one client; beyond it, frames are
	// dropped rather than blocking the broadcast.
	streamBuffer = 64

	healthPingTimeout = 2 * time.Second
)

// candlePayload is the JSON shape for candle history rows.
type candlePayload struct {
	Symbol      string  `json:"symbol"`
	Timeframe   string  `json:"timeframe"`
	BucketStart int64   `json:"bucketStart"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
}

func toCandlePayload(c model.Candle) candlePayload {
	return candlePayload{
		Symbol:      c.Symbol,
		Timeframe:   c.Timeframe,
		BucketStart: c.BucketStart,
		Open:        c.Open.InexactFloat64(),
		High:        c.High.InexactFloat64(),
		Low:         c.Low.InexactFloat64(),
		Close:       c.Close.InexactFloat64(),
		Volume:      c.Volume.InexactFloat64(),
	}
}

// parseSymbols splits a comma-separated symbol list, trimming and uppercasing
// each entry.
func parseSymbols(raw string) []string {
	var symbols []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}

func setStreamHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()
}

func writeEvent(c *gin.Context, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}

// streamTicks serves GET /api/realtime?symbols=A,B as an SSE tick stream.
func (s *Server) streamTicks(c *gin.Context) {
	symbols := parseSymbols(c.Query("symbols"))
	if len(symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols query parameter is required"})
		return
	}

	updates := make(chan model.TickUpdate, streamBuffer)
	sess := session.New(session.Config{
		Symbols:        symbols,
		ThrottleWindow: s.cfg.ThrottleWindow,
		Logger:         s.logger,
	}, func(u model.TickUpdate) {
		select {
		case updates <- u:
		default:
		}
	})
	sess.Start(s.engine.Hub())
	defer sess.Close()

	setStreamHeaders(c)

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			writeEvent(c, u)
		}
	}
}

// streamHoldings serves GET /api/realtime/open?user=<id> as an SSE stream of
// unrealized-PnL snapshots over the user's open positions.
func (s *Server) streamHoldings(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user query parameter is required"})
		return
	}

	ctx := c.Request.Context()

	positions, err := s.store.OpenPositions(ctx, userID)
	if err != nil {
		s.logger.Error("open positions lookup failed", "user", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load open positions"})
		return
	}

	// Seed each position symbol with its current price so the first snapshot
	// does not start from entry prices.
	seed := make(map[string]decimal.Decimal)
	for _, pos := range positions {
		if _, ok := seed[pos.Symbol]; ok {
			continue
		}
		lp := s.engine.Prices().Latest(ctx, pos.Symbol)
		if !prices.IsSentinel(lp) {
			seed[pos.Symbol] = lp.Price
		}
	}

	snapshots := make(chan model.PnLSnapshot, streamBuffer)
	sess := session.NewHoldings(session.HoldingsConfig{
		Positions:      positions,
		SeedPrices:     seed,
		ThrottleWindow: s.cfg.ThrottleWindow,
		Logger:         s.logger,
	}, func(snap model.PnLSnapshot) {
		select {
		case snapshots <- snap:
		default:
		}
	})
	sess.Start(s.engine.Hub())
	defer sess.Close()

	setStreamHeaders(c)

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-snapshots:
			writeEvent(c, snap)
		}
	}
}

// latestPrice serves GET /api/price/:symbol. Unknown symbols answer with the
// -1 sentinel rather than a 404.
func (s *Server) latestPrice(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))

	lp := s.engine.Prices().Latest(c.Request.Context(), symbol)

	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"price":  lp.Price.InexactFloat64(),
		"volume": lp.Volume.InexactFloat64(),
	})
}

// candleHistory serves GET /api/candles/:symbol?limit=N, oldest first.
func (s *Server) candleHistory(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))

	limit := defaultCandleLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > maxCandleLimit {
		limit = maxCandleLimit
	}

	candles, err := s.store.RecentCandles(c.Request.Context(), symbol, limit)
	if err != nil {
		s.logger.Error("candle history lookup failed", "symbol", symbol, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load candles"})
		return
	}

	payload := make([]candlePayload, 0, len(candles))
	for _, cd := range candles {
		payload = append(payload, toCandlePayload(cd))
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":  symbol,
		"candles": payload,
	})
}

// health serves GET /health with feed and database status.
func (s *Server) health(c *gin.Context) {
	stats := s.engine.Stats()

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
	defer cancel()

	overall, dbStatus := "ok", "ok"
	code := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		overall, dbStatus = "degraded", "down"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":   overall,
		"database": dbStatus,
		"feed": gin.H{
			"state":      stats.State,
			"symbols":    stats.SubscribedSymbols,
			"reconnects": stats.ReconnectAttempts,
		},
		"subscribers": s.engine.Hub().Len(),
	})
}
