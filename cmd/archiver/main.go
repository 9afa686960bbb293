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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/txexplorer/client"
	"github.com/brojonat/txexplorer/service/archiver"
	"github.com/brojonat/txexplorer/service/config"
	"github.com/brojonat/txexplorer/service/db"
	"github.com/brojonat/txexplorer/service/explorer"
	"github.com/brojonat/txexplorer/service/metrics"
	natspkg "github.com/brojonat/txexplorer/service/nats"
)

func main() {
	// Load and validate configuration from environment
	cfg := config.MustLoad()
	if err := cfg.RequireDatabase(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting archiver",
		"feed", cfg.FeedURL,
		"nats_url", cfg.NATSURL,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Apply pending schema migrations
	if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	// Initialize database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	// Verify database connection
	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(prometheus.DefaultRegisterer)

	store := db.NewStore(dbPool).WithMetrics(metricsCollector)

	// Start metrics HTTP server
	metricsAddr := getEnv("METRICS_ADDR", ":9091")
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.Handler(),
	}

	go func() {
		logger.Info("starting metrics HTTP server", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	// Initialize NATS publisher
	var publisher natspkg.Publisher
	if cfg.NATSURL != "" {
		natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer natsPublisher.Close()
		publisher = natsPublisher.WithMetrics(metricsCollector)
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	} else {
		logger.Warn("NATS_URL not set, archiving without republishing")
	}

	retention := cfg.ArchiveRetention

	feed := explorer.NewFeed(logger).WithRecorder(metricsCollector)
	updates, stopListening := feed.Listen(cfg.SSEBufferSize)
	defer stopListening()

	worker := archiver.New(store, publisher, logger).WithRetention(retention)
	stream := client.NewStream(cfg.FeedURL, cfg.FeedReconnectDelay, logger)

	logger.Info("archiver initialized, all dependencies ready",
		"retention", retention,
		"buffer", cfg.SSEBufferSize,
	)

	// Start the subscription and the archive loop in background
	workerErrors := make(chan error, 2)
	go func() {
		workerErrors <- feed.Consume(ctx, stream)
	}()
	go func() {
		workerErrors <- worker.Run(ctx, updates)
	}()

	// Wait for shutdown signal or worker error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		logger.Error("archiver stopped", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()
		logger.Info("shutdown complete")
	}
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

// getEnv returns the value of an environment variable or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
