// Package server exposes the caching client, the options pipeline and the
// batch fetcher over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/Sternrassler/alphavantage-client/pkg/batch"
	"github.com/Sternrassler/alphavantage-client/pkg/client"
	"github.com/Sternrassler/alphavantage-client/pkg/metrics"
	"github.com/Sternrassler/alphavantage-client/pkg/options"
	"github.com/Sternrassler/alphavantage-client/pkg/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Config holds server configuration
type Config struct {
	Addr string

	// Client is the caching client; its cache backs DELETE /api/v1/cache (REQUIRED)
	Client *client.Client

	// Fetcher serves requests; defaults to Client. Set it to a Retrier to
	// enable caller-side retries.
	Fetcher client.Fetcher

	// Advisories backs /ready (optional)
	Advisories *ratelimit.Tracker

	// Batch configures POST /api/v1/batch
	Batch batch.Config

	Log zerolog.Logger
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	server     *http.Server
	client     *client.Client
	fetcher    client.Fetcher
	options    *options.Service
	batch      *batch.Fetcher
	advisories *ratelimit.Tracker
	log        zerolog.Logger
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = cfg.Client
	}

	s := &Server{
		router:     chi.NewRouter(),
		client:     cfg.Client,
		fetcher:    fetcher,
		options:    options.NewService(fetcher),
		batch:      batch.NewFetcher(fetcher, cfg.Batch),
		advisories: cfg.Advisories,
		log:        cfg.Log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(requestIDMiddleware)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Accept-Encoding", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader, AdvisoryHeader},
		MaxAge:         300,
	}))

	// Compress responses for clients that ask for zstd
	s.router.Use(zstdMiddleware)
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/query", s.handleQuery)
		r.Get("/options/{symbol}", s.handleOptions)
		r.Post("/batch", s.handleBatch)
		r.Delete("/cache", s.handleClearCache)
	})
}

// Handler returns the routed handler (for testing and embedding).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
