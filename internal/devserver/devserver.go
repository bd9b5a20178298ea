// Package devserver is a local stand-in for the remote finance service.
//
// It implements the external interfaces the sync core depends on — the
// authentication exchange, the identity fetch, the write replay endpoint
// with Idempotency-Key deduplication, and a health endpoint for the
// connectivity prober — so the module runs end to end without the real
// backend. State is in memory only; losing it on restart is fine, that is
// exactly the situation the client-side outbox exists for.
package devserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/alessandrolsdev/ledgersync/internal/model"
)

// Config holds dev server configuration.
type Config struct {
	Port      int
	JWTSecret string
}

// Server is the dev stand-in and all its dependencies.
type Server struct {
	router    *chi.Mux
	config    Config
	logger    *slog.Logger
	tokens    *TokenService
	passwords *PasswordService
	store     *memStore
}

// New creates a Server and wires its routes.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	tokens, err := NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("devserver: %w", err)
	}

	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		logger:    logger,
		tokens:    tokens,
		passwords: NewPasswordService(),
		store:     newMemStore(),
	}
	s.setupRoutes()
	return s, nil
}

// newForTest mirrors New but takes a pre-built PasswordService so tests
// can use the bcrypt minimum cost.
func newForTest(cfg Config, logger *slog.Logger, passwords *PasswordService) (*Server, error) {
	tokens, err := NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		logger:    logger,
		tokens:    tokens,
		passwords: passwords,
		store:     newMemStore(),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(requestLogger(s.logger))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Post("/api/login", s.handleLogin)

	s.router.Group(func(r chi.Router) {
		r.Use(requireAuth(s.tokens))
		r.Get("/api/me", s.handleMe)
		r.Post("/api/transactions", s.handleCreateTransaction)
	})
}

// Handler exposes the router, mainly for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SeedAccount registers a dev account with the given identity and
// plaintext password.
func (s *Server) SeedAccount(ident model.Identity, password string) error {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return fmt.Errorf("devserver: seeding %q: %w", ident.Username, err)
	}
	s.store.addAccount(ident, hash)
	return nil
}

// Transactions returns all committed transactions, for tests and
// debugging.
func (s *Server) Transactions() []Transaction {
	return s.store.list()
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("dev server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("devserver: server error: %w", err)
		}
	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("devserver: graceful shutdown failed: %w", err)
		}
		s.logger.Info("dev server stopped gracefully")
	}

	return nil
}

// requestLogger logs each request with method, path, status, and timing.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", ww.BytesWritten()),
			)
		})
	}
}
