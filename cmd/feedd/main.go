package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"tickfeed/internal/config"
	"tickfeed/internal/feed"
	"tickfeed/internal/ledger"
	"tickfeed/internal/server"
	"tickfeed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/feedd.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	// .env values back the ${VAR} references in the config file.
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}

	logger.Info("starting feedd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"ws_url", cfg.Feed.WSURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to the ledger database
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)

	led, err := ledger.Connect(ctx, cfg.Database.Postgres, logger.With("component", "ledger"))
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer led.Close()

	logger.Info("database connected")

	// Build and start the feed engine
	engine := feed.NewEngine(feed.ConnectorConfig{
		WSURL:          cfg.Feed.WSURL,
		APIToken:       cfg.Feed.APIToken,
		ReconnectDelay: cfg.Feed.ReconnectDelay,
		StartupJitter:  cfg.Feed.StartupJitter,
		PingTimeout:    cfg.Feed.PingTimeout,
		WriteTimeout:   cfg.Feed.WriteTimeout,
		BufferSize:     cfg.Feed.BufferSize,
	}, led, logger)

	if err := engine.Start(ctx); err != nil {
		logger.Error("failed to start feed engine", "error", err)
		os.Exit(1)
	}

	// HTTP transport
	srv := server.New(server.Config{
		Port:           cfg.Server.Port,
		ThrottleWindow: cfg.Session.ThrottleWindow,
	}, led, engine, logger.With("component", "server"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Stop(shutdownCtx)
	})

	logger.Info("feedd running",
		"instance_id", cfg.Instance.ID,
		"port", cfg.Server.Port,
	)

	if err := g.Wait(); err != nil {
		logger.Error("http server error", "error", err)
	}

	// Flush in-progress candles before exit
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := engine.Stop(shutdownCtx); err != nil {
		logger.Warn("engine shutdown incomplete", "error", err)
	}

	logger.Info("feedd stopped")
}
