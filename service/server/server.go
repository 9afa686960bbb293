package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/brojonat/txexplorer/service/config"
	"github.com/brojonat/txexplorer/service/explorer"
	"github.com/brojonat/txexplorer/service/metrics"
)

// Server represents the HTTP explorer server.
type Server struct {
	addr       string
	cfg        *config.Config
	controller *explorer.Controller
	resolver   *explorer.Resolver
	renderer   *TemplateRenderer
	metrics    *metrics.Metrics
	logger     *slog.Logger
	server     *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The controller supplies the shared network status, rates and live feed;
// page requests are resolved independently through the resolver.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, controller *explorer.Controller, resolver *explorer.Resolver, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:       addr,
		cfg:        cfg,
		controller: controller,
		resolver:   resolver,
		metrics:    m,
		logger:     logger,
	}
}

// WithTemplates adds template rendering support to the server using embedded files
func (s *Server) WithTemplates() error {
	renderer, err := NewTemplateRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	s.renderer = renderer
	s.logger.Info("HTML templates loaded from embedded files")
	return nil
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	feed := s.controller.Feed()

	// HTML pages
	mux.Handle("GET /{$}", s.instrument("/", handleHome(s.controller, s.renderer, s.logger)))
	mux.Handle("GET /{kind}/{id...}", s.instrument("/{kind}/{id}", handlePage(s.controller, s.resolver, s.renderer, s.metrics, s.logger)))
	mux.Handle("GET /search", s.instrument("/search", handleSearch(s.controller, s.resolver, s.renderer, s.logger)))

	// Live feed
	mux.Handle("GET /api/v1/feed", s.instrument("/api/v1/feed", handleFeedSnapshot(s.controller)))
	mux.Handle("GET /api/v1/stream", s.instrument("/api/v1/stream", handleStream(feed, s.cfg.SSEBufferSize, s.metrics, s.logger)))

	// Health check endpoint
	mux.HandleFunc("GET /health", handleHealth(s.controller))

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         3600,
	}).Handler(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	if s.renderer == nil {
		if err := s.WithTemplates(); err != nil {
			return err
		}
	}

	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: /api/v1/stream holds responses open.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
}
