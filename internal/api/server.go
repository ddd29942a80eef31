// Package api serves the read-only operations endpoints: health, Prometheus
// metrics, the audit ledger with its integrity check, and run history.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/eshaffer321/smartcash-reconciler/internal/api/handlers"
	"github.com/eshaffer321/smartcash-reconciler/internal/api/middleware"
	"github.com/eshaffer321/smartcash-reconciler/internal/infrastructure/storage"
)

// Config holds API server configuration.
type Config struct {
	Addr           string
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Addr:           ":9090",
		AllowedOrigins: middleware.DefaultCORSConfig().AllowedOrigins,
	}
}

// Deps are the collaborators behind the routes. Nil members disable their routes.
type Deps struct {
	Ledger   handlers.LedgerReader
	Verifier handlers.LedgerVerifier
	Runs     storage.RunRepository
	Metrics  http.Handler
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	deps       Deps
}

// NewServer creates a new API server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
		logger: logger,
		deps:   deps,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = s.config.AllowedOrigins
	s.router.Use(middleware.CORS(corsConfig))

	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(chimw.GetHead)
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	s.router.Get("/health", handlers.NewHealthHandler(s.deps.Ledger).ServeHTTP)

	if s.deps.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	s.router.Route("/api", func(r chi.Router) {
		if s.deps.Ledger != nil && s.deps.Verifier != nil {
			ledgerHandler := handlers.NewLedgerHandler(s.deps.Ledger, s.deps.Verifier)
			r.Get("/ledger", ledgerHandler.List)
			r.Get("/ledger/verify", ledgerHandler.Verify)
		}

		runsHandler := handlers.NewRunsHandler(s.deps.Runs)
		r.Get("/runs", runsHandler.List)
		r.Get("/runs/{id}", runsHandler.Get)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.config.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
