// Package api is the HTTP surface of texgate.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/texgate/internal/auth"
	"github.com/mattjoyce/texgate/internal/compile"
	"github.com/mattjoyce/texgate/internal/config"
	"github.com/mattjoyce/texgate/internal/events"
	"github.com/mattjoyce/texgate/internal/journal"
	"github.com/mattjoyce/texgate/internal/metrics"
)

//go:generate mockgen -destination=mocks/mock_compiler.go -package=mocks github.com/mattjoyce/texgate/internal/api Compiler

// Compiler is the subset of *compile.Service the handlers need.
type Compiler interface {
	Compile(ctx context.Context, req compile.Request) (compile.Result, error)
	SelfTest(ctx context.Context) (compile.SelfTestResult, error)
	EngineStatus() (version string, err error)
	ActiveWorkspaces() int
}

// EventSource feeds GET /events.
type EventSource interface {
	SnapshotSince(lastID int64) []events.Event
	Subscribe() (<-chan events.Event, func())
}

// CompileLog serves GET /compiles.
type CompileLog interface {
	Recent(ctx context.Context, limit int, outcome string) ([]journal.Entry, error)
}

// Config holds API server configuration
type Config struct {
	Listen  string
	Service string
	Version string

	APIKey        string
	ProtectHealth bool

	DownloadName        string
	CompilerErrorStatus int
	MaxBodyBytes        int64

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// ConfigFrom maps the loaded service config onto the server config.
func ConfigFrom(cfg *config.Config, version string) Config {
	return Config{
		Listen:              cfg.API.Listen,
		Service:             cfg.Service.Name,
		Version:             version,
		APIKey:              cfg.API.Auth.APIKey,
		ProtectHealth:       cfg.API.Auth.ProtectHealth,
		DownloadName:        cfg.API.DownloadName,
		CompilerErrorStatus: cfg.API.CompilerErrorStatus,
		MaxBodyBytes:        cfg.API.MaxBodyBytes,
		ReadTimeout:         cfg.API.ReadTimeout,
		WriteTimeout:        cfg.API.WriteTimeout,
		ShutdownTimeout:     cfg.API.ShutdownTimeout,
	}
}

// Server represents the HTTP API server
type Server struct {
	config   Config
	compiler Compiler
	gate     *auth.Gate
	logger   *slog.Logger

	events         EventSource
	journal        CompileLog
	metrics        metrics.Recorder
	metricsHandler http.Handler

	server    *http.Server
	startedAt time.Time

	// closing is closed when shutdown begins and ends open event streams.
	closing     chan struct{}
	closingOnce sync.Once
	inflight    sync.WaitGroup
}

// drainTimeout bounds the wait for canceled handlers once the shutdown grace
// has elapsed. Engines need their termination grace to exit.
const drainTimeout = 30 * time.Second

// Option customizes a Server.
type Option func(*Server)

// WithEvents serves GET /events from src.
func WithEvents(src EventSource) Option {
	return func(s *Server) { s.events = src }
}

// WithCompileLog serves GET /compiles from log.
func WithCompileLog(log CompileLog) Option {
	return func(s *Server) { s.journal = log }
}

// WithMetrics counts rejected requests on rec and mounts handler at /metrics
// when it is non-nil.
func WithMetrics(rec metrics.Recorder, handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = rec
		s.metricsHandler = handler
	}
}

// New creates a new API server instance
func New(config Config, compiler Compiler, logger *slog.Logger, opts ...Option) *Server {
	if config.Service == "" {
		config.Service = "texgate"
	}
	if config.DownloadName == "" {
		config.DownloadName = "document.pdf"
	}
	if config.CompilerErrorStatus == 0 {
		config.CompilerErrorStatus = http.StatusBadRequest
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{
		config:    config,
		compiler:  compiler,
		gate:      auth.NewGate(config.APIKey),
		logger:    logger,
		metrics:   metrics.NoopRecorder{},
		startedAt: time.Now(),
		closing:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if !s.gate.Enabled() {
		logger.Warn("no API key configured; all authenticated endpoints will reject requests")
	}
	return s
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the API on ln until ctx is done. On shutdown open event streams
// end at once and in-flight compiles get ShutdownTimeout to finish. Compiles
// still running after that are canceled, which terminates their engines, and
// Serve waits for them before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	requests, abort := context.WithCancel(context.Background())
	defer abort()

	s.server = &http.Server{
		Handler:      s.setupRoutes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return requests },
	}

	s.logger.Info("API server starting", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down", "grace", s.config.ShutdownTimeout)
		s.closeStreams()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		err := s.server.Shutdown(shutdownCtx)
		if err == nil {
			return ctx.Err()
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		s.logger.Warn("shutdown grace elapsed, canceling in-flight requests")
		abort()
		if err := s.drain(drainTimeout); err != nil {
			_ = s.server.Close()
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		_ = s.server.Close()
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) closeStreams() {
	s.closingOnce.Do(func() { close(s.closing) })
}

// drain waits for every tracked handler to return.
func (s *Server) drain(limit time.Duration) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(limit):
		return fmt.Errorf("handlers still running after %s", limit)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.trackInFlight)
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.securityHeaders)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/", s.handleRoot)
	if s.config.ProtectHealth {
		r.With(s.authMiddleware).Get("/health", s.handleHealth)
	} else {
		r.Get("/health", s.handleHealth)
	}
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/compile", s.handleCompile)
		r.Post("/selftest", s.handleSelfTest)
		r.Get("/events", s.handleEvents)
		r.Get("/compiles", s.handleCompiles)
	})

	return r
}

func (s *Server) endpoints() []string {
	out := []string{"GET /", "GET /health", "POST /compile", "POST /selftest", "GET /events", "GET /compiles"}
	if s.metricsHandler != nil {
		out = append(out, "GET /metrics")
	}
	return out
}
