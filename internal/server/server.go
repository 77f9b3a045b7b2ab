package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tickfeed/internal/feed"
	"tickfeed/internal/hub"
	"tickfeed/internal/model"
	"tickfeed/internal/prices"
)

// Store is what the handlers need from the ledger.
type Store interface {
	RecentCandles(ctx context.Context, symbol string, limit int) ([]model.Candle, error)
	OpenPositions(ctx context.Context, userID string) ([]model.Position, error)
	Ping(ctx context.Context) error
}

// Engine is what the handlers need from the feed engine.
type Engine interface {
	Hub() *hub.Hub
	Prices() *prices.Cache
	Stats() feed.ConnectorStats
}

// Config configures the HTTP server.
type Config struct {
	Port           int
	ThrottleWindow time.Duration // Per-symbol delivery throttle for streams
}

// Server is the gin-backed HTTP transport.
type Server struct {
	cfg    Config
	store  Store
	engine Engine
	logger *slog.Logger

	router *gin.Engine
	srv    *http.Server
}

// New builds the server and its routes.
func New(cfg Config, store Store, engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:    cfg,
		store:  store,
		engine: engine,
		logger: logger,
		router: router,
	}
	s.routes()

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return s
}

func (s *Server) routes() {
	s.router.GET("/api/realtime", s.streamTicks)
	s.router.GET("/api/realtime/open", s.streamHoldings)
	s.router.GET("/api/price/:symbol", s.latestPrice)
	s.router.GET("/api/candles/:symbol", s.candleHistory)
	s.router.GET("/health", s.health)
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called. Blocks.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("http server stopping")
	return s.srv.Shutdown(ctx)
}
