// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root of the HTTP surface: it connects handlers,
// middleware, and routes, and owns the lifecycle of the listener and the
// database. main builds the sandbox runtime and the token service and passes
// them in, so the same wiring runs in tests with fakes.
//
// DEPENDENCY FLOW:
//
//	sqlite.DB ─┬─> SnippetService ──> SnippetHandler
//	           └─> ExecutionService ─> ExecuteHandler
//	executor.Runtime + transpile.Transpiler ─┘
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/js-playground/internal/auth"
	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/executor/transpile"
	"github.com/sakif/js-playground/internal/handler"
	"github.com/sakif/js-playground/internal/middleware"
	sqliteRepo "github.com/sakif/js-playground/internal/repository/sqlite"
	"github.com/sakif/js-playground/internal/service"
)

// Config holds server configuration.
type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Limits is the budget of every execution.
	Limits executor.Limits

	// Admission control on the execute routes.
	RateLimit     middleware.RateLimitConfig
	MaxConcurrent int
	QueueWait     time.Duration
}

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database connection and closes it when Start returns.
// The runtime belongs to the caller.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New wires db, runtime and tokens into a router.
func New(cfg Config, db *sqliteRepo.DB, runtime executor.Runtime, tokens *auth.TokenService, logger *slog.Logger) *Server {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	snippetService := service.NewSnippetService(db, tokens, logger)
	executionService := service.NewExecutionService(runtime, transpile.New(), db, cfg.Limits, logger)

	s.setupRoutes(
		handler.NewSnippetHandler(snippetService, logger),
		handler.NewExecuteHandler(executionService, logger),
		tokens,
	)
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTES:
//
//	GET    /api                  health probe
//	POST   /api/execute          run JavaScript (or TypeScript with "language")
//	POST   /api/execute/ts       run TypeScript
//	POST   /api/compile          transpile only
//	GET    /api/examples         built-in snippets
//	GET    /api/stats            run history aggregates
//	GET    /api/snippets         list
//	POST   /api/snippets         create, returns an edit token
//	GET    /api/snippets/{id}    fetch
//	PUT    /api/snippets/{id}    update (edit token)
//	DELETE /api/snippets/{id}    delete (edit token)
//
// Middleware runs in the order it is added. RealIP comes before the rate
// limiter so buckets are keyed by the real client.
func (s *Server) setupRoutes(snippets *handler.SnippetHandler, execute *handler.ExecuteHandler, tokens *auth.TokenService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	s.router.NotFound(handler.NotFound)
	s.router.MethodNotAllowed(handler.MethodNotAllowed)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/", handler.HandleHello)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(s.config.RateLimit))
			r.Use(middleware.Concurrency(s.config.MaxConcurrent, s.config.QueueWait))
			r.Post("/execute", execute.HandleExecute)
			r.Post("/execute/ts", execute.HandleExecuteTS)
		})
		r.Post("/compile", execute.HandleCompile)
		r.Get("/stats", execute.HandleStats)
		r.Get("/examples", snippets.HandleExamples)

		r.Route("/snippets", func(r chi.Router) {
			r.Get("/", snippets.HandleList)
			r.Post("/", snippets.HandleCreate)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", snippets.HandleGet)
				r.With(auth.RequireEditToken(tokens)).Put("/", snippets.HandleUpdate)
				r.With(auth.RequireEditToken(tokens)).Delete("/", snippets.HandleDelete)
			})
		})
	})
}

// Start serves HTTP until ctx is canceled or the process receives SIGINT or
// SIGTERM, then drains in-flight requests and closes the database.
func (s *Server) Start(ctx context.Context) error {
	defer s.db.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// WriteTimeout must leave room for the slowest execution.
	writeTimeout := s.config.WriteTimeout
	if minimum := s.config.Limits.Timeout + s.config.QueueWait + 5*time.Second; writeTimeout < minimum {
		writeTimeout = minimum
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.Duration("executionTimeout", s.config.Limits.Timeout),
			slog.Int64("memoryLimitBytes", s.config.Limits.MemoryLimitBytes),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownTimeout := s.config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.logger.Info("server stopped gracefully")
	return nil
}
