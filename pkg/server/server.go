// Package server provides the gateway's HTTP surface: the catch-all
// pipeline handler plus the login, OAuth2, health, and metrics endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/gateway"
	"meridian-hq/meridian/pkg/policies/oauth2"
	"meridian-hq/meridian/pkg/telemetry/metrics"
)

// Server is the gateway HTTP server.
type Server struct {
	cfg     *config.Config
	oauth   *oauth2.Server
	logger  *slog.Logger
	metrics *metrics.Metrics

	// engine holds the current immutable pipeline snapshot. The config
	// watcher swaps in a rebuilt engine; in-flight requests keep the
	// snapshot they started with.
	engine atomic.Pointer[gateway.Engine]

	// gatherer serves the metrics endpoint. Defaults to
	// prometheus.DefaultGatherer.
	gatherer prometheus.Gatherer

	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.Mutex
	isRunning    bool
}

// Options carries the collaborators a Server is built from.
type Options struct {
	// Engine is the initial pipeline snapshot.
	Engine *gateway.Engine

	// OAuth2 serves login, authorize, and decision.
	OAuth2 *oauth2.Server

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics collectors; nil disables instrumentation.
	Metrics *metrics.Metrics

	// Gatherer backs the metrics endpoint. Defaults to
	// prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// NewServer creates the gateway server.
func NewServer(cfg *config.Config, opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("server requires an engine")
	}
	if opts.OAuth2 == nil {
		return nil, fmt.Errorf("server requires an oauth2 server")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		cfg:          cfg,
		oauth:        opts.OAuth2,
		logger:       logger.With("component", "server"),
		metrics:      opts.Metrics,
		gatherer:     gatherer,
		shutdownChan: make(chan struct{}),
	}
	s.engine.Store(opts.Engine)
	return s, nil
}

// SwapEngine atomically replaces the pipeline snapshot. Requests already
// running finish against the snapshot they started with.
func (s *Server) SwapEngine(engine *gateway.Engine) {
	s.engine.Store(engine)
	s.logger.Info("pipeline snapshot swapped")
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:         s.cfg.HTTP.ListenAddress,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.HTTP.ReadTimeout.Std(),
		WriteTimeout: s.cfg.HTTP.WriteTimeout.Std(),
		IdleTimeout:  s.cfg.HTTP.IdleTimeout.Std(),
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting gateway server", "address", s.cfg.HTTP.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		return s.Shutdown(context.Background())
	}
}

// Stop requests a shutdown from another goroutine.
func (s *Server) Stop() {
	select {
	case s.shutdownChan <- struct{}{}:
	default:
	}
}

// Shutdown gracefully drains and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		running := s.isRunning
		s.mu.Unlock()
		if !running {
			return
		}

		timeout := s.cfg.HTTP.ShutdownTimeout.Std()
		s.logger.Info("initiating graceful shutdown", "timeout", timeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("gateway server stopped")
	})

	return shutdownErr
}

// Handler builds the full route and middleware chain. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /oauth2/authorize", s.handleAuthorize)
	mux.HandleFunc("POST /oauth2/authorize/decision", s.handleDecision)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.cfg.Metrics.MetricsEnabled() {
		mux.Handle("GET "+s.cfg.Metrics.Path,
			promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", s.handleGateway)

	var handler http.Handler = mux
	handler = loggingMiddleware(s.logger)(handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(s.logger)(handler)
	return handler
}
