// Package server exposes the answering pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ricesearch/quickquery/internal/app"
	"github.com/ricesearch/quickquery/internal/metrics"
	"github.com/ricesearch/quickquery/internal/pkg/logger"
	"github.com/ricesearch/quickquery/internal/pkg/middleware"
)

// Server is the HTTP front of an App.
type Server struct {
	cfg        Config
	app        *app.App
	log        *logger.Logger
	httpServer *http.Server
	limiter    *middleware.RateLimiter
	handler    http.Handler

	stopSweep context.CancelFunc
	sweepDone chan struct{}

	mu      sync.Mutex
	started bool
}

// Config configures the server.
type Config struct {
	// Host is the address to bind to.
	Host string

	// Port is the HTTP port.
	Port int

	// Version is the application version.
	Version string

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout. Fallback answers can be slow.
	WriteTimeout time.Duration

	// ShutdownTimeout is the graceful shutdown timeout.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    90 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// New creates a server over a.
func New(cfg Config, a *app.App, log *logger.Logger) *Server {
	def := DefaultConfig()
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}

	s := &Server{
		cfg: cfg,
		app: a,
		log: logger.OrDefault(log).WithComponent("server"),
	}

	sec := a.Config.Security
	if sec.RateLimit > 0 {
		s.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: sec.RateLimit,
			Burst:             sec.RateBurst,
		})
	}
	s.handler = s.setupRoutes()
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()
	h := &handlers{app: s.app, version: s.cfg.Version, log: s.log}

	mux.HandleFunc("POST /v1/answer", h.answer)
	mux.HandleFunc("POST /v1/compare", h.compare)
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /v1/version", h.versionInfo)

	mux.HandleFunc("GET /v1/stats", h.stats)
	mux.HandleFunc("GET /v1/report", h.report)
	mux.HandleFunc("GET /v1/export.csv", h.exportCSV)

	mux.HandleFunc("GET /v1/cache/stats", h.cacheStats)
	mux.HandleFunc("DELETE /v1/cache", h.clearCache)

	if s.app.Instruments != nil {
		mux.Handle("GET /metrics", s.app.Instruments.Handler())
	}

	chain := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Logging(s.log),
		middleware.CORS(s.app.Config.Security.CORSOrigins),
	}
	if s.limiter != nil {
		chain = append(chain, s.limiter.Middleware)
	}
	return metrics.HTTPMiddleware(s.app.Instruments, middleware.Chain(mux, chain...))
}

// Start starts the cache sweeper and serves HTTP until Stop is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.startSweeper()
	s.mu.Unlock()

	s.log.Info("Starting HTTP server", "addr", addr, "version", s.cfg.Version)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) startSweeper() {
	if s.app.Cache == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopSweep = cancel
	s.sweepDone = make(chan struct{})
	go func() {
		defer close(s.sweepDone)
		s.app.Cache.Run(ctx, s.app.Config.Cache.SweepInterval)
	}()
}

// Stop gracefully stops the server, then closes the app.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	var result *multierror.Error
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("http shutdown: %w", err))
	}

	if s.stopSweep != nil {
		s.stopSweep()
		<-s.sweepDone
	}
	if s.limiter != nil {
		s.limiter.Close()
	}
	if err := s.app.Close(shutdownCtx); err != nil {
		result = multierror.Append(result, err)
	}

	s.started = false
	if err := result.ErrorOrNil(); err != nil {
		s.log.WithError(err).Error("Server stopped with errors")
		return err
	}
	s.log.Info("Server stopped")
	return nil
}

// Running reports whether the server has been started.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
