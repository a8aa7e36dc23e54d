// Package server serves Meridian over HTTP: derivation requests, Prometheus
// metrics and health checks, behind request id, logging and panic recovery
// middleware.
//
//	mux := http.NewServeMux()
//	mux.Handle("/v1/derive", server.NewDeriveHandler(store, engine, logger))
//	srv := server.NewServer(cfg, mux, logger)
//	if err := srv.Start(ctx); err != nil {
//		return err
//	}
//
// Start blocks until ctx is cancelled and then shuts down gracefully.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
)

// Server is an HTTP server with graceful shutdown.
type Server struct {
	// config holds timeouts and the listen address.
	config Config

	// handler is the routed handler, already wrapped in middleware.
	handler http.Handler

	// httpServer is created by Start and nil before it.
	httpServer *http.Server

	logger *slog.Logger

	// shutdownOnce guards Shutdown against repeated calls.
	shutdownOnce sync.Once

	// mu protects isRunning and addr.
	mu sync.RWMutex

	// isRunning is true between a successful listen and Shutdown.
	isRunning bool

	// addr is the bound address, which differs from config.Addr when the
	// configured port is 0.
	addr string
}

// NewServer creates a server for handler. Zero timeouts in cfg take their
// defaults.
func NewServer(cfg Config, handler http.Handler, logger *slog.Logger) *Server {
	def := DefaultConfig()
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config: cfg,
		logger: logger.With("component", "server"),
	}
	s.handler = s.chain(handler)
	return s
}

// Start listens on the configured address and serves until ctx is cancelled
// or serving fails. It shuts down gracefully before returning.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return errors.New("server is already running")
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", s.config.ListenAddress, err)
	}
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}
	s.addr = ln.Addr().String()
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "address", s.addr)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown stops accepting connections and waits up to the shutdown timeout
// for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the address the server listens on, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Handler returns the handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// chain wraps h in the middleware chain, recovery outermost.
func (s *Server) chain(h http.Handler) http.Handler {
	if s.config.MaxBodyBytes > 0 {
		h = BodyLimitMiddleware(s.config.MaxBodyBytes)(h)
	}
	if s.config.MaxConcurrent > 0 {
		h = ConcurrencyLimitMiddleware(s.config.MaxConcurrent)(h)
	}
	h = RequestIDMiddleware(h)
	h = LoggingMiddleware(s.logger)(h)
	h = RecoveryMiddleware(s.logger)(h)
	return h
}
