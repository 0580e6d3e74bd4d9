// Package http assembles the JSON API: the route tree, the middleware
// chain and the http.Server lifecycle.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mirono/webtrees/internal/config"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
)

// Server wraps http.Server with config-driven timeouts, a request body cap
// and graceful shutdown.
type Server struct {
	srv     *http.Server
	logger  logging.Logger
	cfg     config.ServerConfig
	handler http.Handler
}

// NewServer builds the server around an already-assembled handler,
// typically the NewRouter result.
func NewServer(cfg config.ServerConfig, handler http.Handler, logger logging.Logger) *Server {
	if cfg.MaxBodySize > 0 {
		handler = limitBody(handler, cfg.MaxBodySize)
	}
	return &Server{
		handler: handler,
		logger:  logger.Named("http"),
		cfg:     cfg,
		srv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// limitBody caps every request body so a runaway GEDCOM upload cannot
// exhaust memory. Handlers see the cap as a read error.
func limitBody(next http.Handler, max int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		next.ServeHTTP(w, r)
	})
}

// Start blocks serving requests until Stop is called or the listener
// fails. A closed-server error is normal shutdown and not reported.
func (s *Server) Start() error {
	s.logger.Info("http server listening", logging.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests within the configured shutdown window.
func (s *Server) Stop(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	s.logger.Info("http server shutting down")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Handler exposes the assembled handler for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}
