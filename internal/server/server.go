// Package server provides the local HTTP API for Growin.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/growin/growin/internal/database"
	"github.com/growin/growin/internal/events"
	"github.com/growin/growin/internal/metrics"
	"github.com/growin/growin/internal/modules/charts"
	"github.com/growin/growin/internal/modules/live"
	"github.com/growin/growin/internal/scheduler"
)

// AccountBackend switches the active account on the backend.
type AccountBackend interface {
	SetActiveAccount(ctx context.Context, account string) error
	ClearCache(ctx context.Context) error
}

// Config holds server configuration
type Config struct {
	// Context is the parent of every request context. Cancelling it ends
	// long-lived event streams so Shutdown does not wait on them.
	Context   context.Context
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	Poller    *live.Poller
	Charts    *charts.Registry
	Backend   AccountBackend
	Events    *events.Manager
	Metrics   *metrics.Metrics
	CacheDB   *database.DB
	Scheduler *scheduler.Scheduler
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	poller         *live.Poller
	charts         *charts.Registry
	backend        AccountBackend
	events         *events.Manager
	metrics        *metrics.Metrics
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		port:    cfg.Port,
		poller:  cfg.Poller,
		charts:  cfg.Charts,
		backend: cfg.Backend,
		events:  cfg.Events,
		metrics: cfg.Metrics,
		systemHandlers: NewSystemHandlers(
			cfg.Log,
			cfg.Poller,
			cfg.Charts,
			cfg.CacheDB,
			cfg.Scheduler,
		),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	baseCtx := cfg.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		BaseContext: func(net.Listener) context.Context { return baseCtx },
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the event stream is long-lived.
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5, "application/json"))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		if s.events != nil {
			eventsStreamHandler := NewEventsStreamHandler(s.events.Bus(), s.log)
			r.Get("/events/stream", eventsStreamHandler.ServeHTTP)
		}

		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/", s.handlePortfolio)
			r.Get("/accounts/{key}", s.handlePortfolioAccount)
			r.Get("/allocations", s.handleAllocations)
			r.Post("/refresh", s.handleRefresh)
		})

		r.Route("/account", func(r chi.Router) {
			r.Get("/active", s.handleGetActiveAccount)
			r.Post("/active", s.handleSetActiveAccount)
		})

		r.Route("/charts/{symbol}", func(r chi.Router) {
			r.Get("/", s.handleChart)
			r.Get("/indicators", s.handleChartIndicators)
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
			r.Post("/jobs/{name}", s.systemHandlers.HandleTriggerJob)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs each request and counts it by route pattern.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		s.metrics.HTTPRequest(path, status)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, true, nil
}
