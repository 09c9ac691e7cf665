package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/cerberus-gate/cerberus/internal/config"
)

// Server is the gateway's HTTP listener: the proxy endpoint under
// ProxyPrefix plus health and metrics outside it.
type Server struct {
	server          *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// NewServer assembles the router and middleware chain. The metrics
// middleware sits outermost so it captures the full request duration.
func NewServer(cfg config.ServerConfig, proxy *ProxyHandler, health *HealthChecker, metrics *Metrics, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware(metrics))
	r.Use(RequestIDMiddleware(logger))
	r.Use(chimiddleware.Recoverer)

	r.Method(http.MethodGet, "/health", health.Handler())
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// All verbs, with and without a trailing path.
	r.Handle(ProxyPrefix, proxy)
	r.Handle(ProxyPrefix+"/*", proxy)

	return &Server{
		server: &http.Server{
			Addr:    cfg.Addr,
			Handler: r,
		},
		shutdownTimeout: cfg.ShutdownTimeoutDuration(),
		logger:          logger,
	}
}

// Handler exposes the assembled router. Tests only.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start accepts connections until the context is cancelled or the
// listener fails, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("http server shutdown failed", "error", err)
		return err
	}
	s.logger.Info("http server shutdown complete")
	return nil
}
