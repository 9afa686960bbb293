package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/brojonat/txexplorer/client"
	"github.com/brojonat/txexplorer/service/config"
	"github.com/brojonat/txexplorer/service/db"
	"github.com/brojonat/txexplorer/service/explorer"
	"github.com/brojonat/txexplorer/service/metrics"
	"github.com/brojonat/txexplorer/service/server"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"api", cfg.APIBaseURL,
		"feed", cfg.FeedURL,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(prometheus.DefaultRegisterer)

	api := client.NewClient(cfg.APIBaseURL, &http.Client{Timeout: cfg.RequestTimeout}, logger).
		WithObserver(metricsCollector)
	resolver := explorer.NewResolver(api, logger).
		WithRecorder(metricsCollector).
		WithFallbackNetwork(cfg.AddressNetwork())
	feed := explorer.NewFeed(logger).WithRecorder(metricsCollector)

	// Restore the live buffers from the archive when one is configured
	if cfg.DatabaseURL != "" {
		if err := seedFeed(ctx, cfg.DatabaseURL, feed, metricsCollector); err != nil {
			logger.Warn("failed to seed live feed from archive", "error", err)
		}
	}

	controller := explorer.NewController(resolver, explorer.NewMemoryHistory(""), feed, logger).
		WithStatusRefresh(cfg.StatusRefreshInterval)
	if err := controller.Start(ctx); err != nil {
		logger.Warn("controller start incomplete", "error", err)
	}

	// Subscribe to the live feed in background
	stream := client.NewStream(cfg.FeedURL, cfg.FeedReconnectDelay, logger)
	go func() {
		if err := feed.Consume(ctx, stream); err != nil && ctx.Err() == nil {
			logger.Error("live feed subscription stopped", "error", err)
		}
	}()

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, controller, resolver, metricsCollector, logger)
	if err := httpServer.WithTemplates(); err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	logger.Info("server initialized, all dependencies ready",
		"status_refresh", cfg.StatusRefreshInterval,
		"archive", cfg.DatabaseURL != "",
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// seedFeed loads the newest archived entries into the live buffers.
func seedFeed(ctx context.Context, databaseURL string, feed *explorer.Feed, m *metrics.Metrics) error {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := db.NewStore(pool).WithMetrics(m)
	params := db.ListRecentParams{Limit: explorer.FeedCapacity}

	archivedTxs, err := store.ListRecentTransactions(ctx, params)
	if err != nil {
		return err
	}
	archivedBlocks, err := store.ListRecentBlocks(ctx, params)
	if err != nil {
		return err
	}

	txs := make([]explorer.LiveTransaction, len(archivedTxs))
	for i, tx := range archivedTxs {
		txs[i] = tx.Live()
	}
	blocks := make([]explorer.LiveBlock, len(archivedBlocks))
	for i, b := range archivedBlocks {
		blocks[i] = b.Live()
	}
	feed.Seed(txs, blocks)
	return nil
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
