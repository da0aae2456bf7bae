package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/mattjoyce/devdeck/internal/auth"
	"github.com/mattjoyce/devdeck/internal/events"
)

// DefaultPollInterval is the fallback tick of the log stream.
const DefaultPollInterval = 100 * time.Millisecond

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is a single bearer token with full access.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens      []auth.TokenConfig
	CORSOrigins []string
	// PollInterval wakes log streams when no append broadcast arrives.
	PollInterval time.Duration
}

// Deps are optional collaborators. Nil fields disable the routes that need them.
type Deps struct {
	Runs     RunLister
	Events   *events.Hub
	Gatherer prometheus.Gatherer
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	sup       ProjectSupervisor
	runs      RunLister
	events    *events.Hub
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, sup ProjectSupervisor, deps Deps, logger *slog.Logger) *Server {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	return &Server{
		config:    config,
		sup:       sup,
		runs:      deps.Runs,
		events:    deps.Events,
		gatherer:  deps.Gatherer,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: log and event streams stay open.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "If-None-Match", "Last-Event-ID"},
		ExposedHeaders: []string{"ETag"},
	})
	return c.Handler(s.setupRoutes())
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.With(s.requireScopes(auth.ScopeProjectsRO)).Get("/api/projects", s.handleListProjects)
		r.With(s.requireScopes(auth.ScopeProjectsRO)).Get("/api/projects/{id}", s.handleGetProject)
		r.With(s.requireScopes(auth.ScopeProjectsRW)).Post("/api/projects/{id}/start", s.handleStartProject)
		r.With(s.requireScopes(auth.ScopeProjectsRW)).Post("/api/projects/{id}/stop", s.handleStopProject)
		r.With(s.requireScopes(auth.ScopeLogsRO)).Get("/api/projects/{id}/logs", s.handleTailLogs)
		r.With(s.requireScopes(auth.ScopeProjectsRO)).Get("/api/projects/{id}/runs", s.handleListRuns)
		r.With(s.requireScopes(auth.ScopeLogsRO)).Get("/api/ws/{id}", s.handleLogStream)
		if s.events != nil {
			r.With(s.requireScopes(auth.ScopeEventsRO)).Get("/events", s.handleEvents)
		}
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
