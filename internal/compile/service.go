// Package compile runs one compile request end to end: workspace, engine,
// extraction, then events, metrics and the journal.
package compile

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/texgate/internal/config"
	"github.com/mattjoyce/texgate/internal/engine"
	gwerr "github.com/mattjoyce/texgate/internal/errors"
	"github.com/mattjoyce/texgate/internal/events"
	"github.com/mattjoyce/texgate/internal/extract"
	"github.com/mattjoyce/texgate/internal/journal"
	"github.com/mattjoyce/texgate/internal/log"
	"github.com/mattjoyce/texgate/internal/metrics"
	"github.com/mattjoyce/texgate/internal/workspace"
)

const journalWriteTimeout = 5 * time.Second

// Engine is the subset of *engine.Invoker the service needs.
type Engine interface {
	Compile(ctx context.Context, ws workspace.Workspace, source string, timeout time.Duration) (engine.RawResult, error)
	Version(ctx context.Context) (string, error)
}

// Request is one compile job. A zero Timeout means the configured default.
type Request struct {
	ID        string
	Source    string
	Timeout   time.Duration
	Principal string
	Remote    string
}

// Result is a successful compile.
type Result struct {
	Artifact []byte
	Name     string
	Passes   int
	Duration time.Duration
}

// Service orchestrates compile requests. It is safe for concurrent use.
type Service struct {
	engine     Engine
	workspaces workspace.Manager
	extract    extract.Options

	defaultTimeout time.Duration
	maxTimeout     time.Duration

	events  events.Publisher
	metrics metrics.Recorder
	journal journal.Recorder
	logger  *slog.Logger

	mu            sync.RWMutex
	engineVersion string
	engineErr     error
}

// Option customizes a Service.
type Option func(*Service)

// WithEvents publishes lifecycle events to p.
func WithEvents(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithMetrics records request metrics on r.
func WithMetrics(r metrics.Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

// WithJournal writes a compile_log entry per request.
func WithJournal(j journal.Recorder) Option {
	return func(s *Service) { s.journal = j }
}

// NewService builds a Service from the engine config.
func NewService(eng Engine, ws workspace.Manager, cfg config.EngineConfig, opts ...Option) *Service {
	s := &Service{
		engine:     eng,
		workspaces: ws,
		extract: extract.Options{
			ArtifactName: cfg.ArtifactName(),
			LogName:      cfg.LogName(),
			TailChars:    cfg.TailChars,
		},
		defaultTimeout: cfg.DefaultTimeout,
		maxTimeout:     cfg.MaxTimeout,
		events:         events.Discard{},
		metrics:        metrics.NoopRecorder{},
		logger:         log.WithComponent("compile"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveTimeout applies the default to a zero timeout and clamps anything
// above the configured maximum. Negative values are rejected.
func (s *Service) ResolveTimeout(requested time.Duration) (time.Duration, error) {
	switch {
	case requested < 0:
		return 0, gwerr.Validation(gwerr.ReasonInvalidTimeout, "timeout_seconds must be greater than zero")
	case requested == 0:
		return s.defaultTimeout, nil
	case s.maxTimeout > 0 && requested > s.maxTimeout:
		return s.maxTimeout, nil
	default:
		return requested, nil
	}
}

// Compile runs req. Errors are *errors.Error values, or the context error
// when the caller went away.
func (s *Service) Compile(ctx context.Context, req Request) (Result, error) {
	logger := s.logger.With("request_id", req.ID)

	if strings.TrimSpace(req.Source) == "" {
		return Result{}, gwerr.Validation(gwerr.ReasonEmptyInput, "source_text must be a non-empty string")
	}
	timeout, err := s.ResolveTimeout(req.Timeout)
	if err != nil {
		return Result{}, err
	}
	if req.Timeout > timeout {
		logger.Info("requested timeout clamped", "requested", req.Timeout, "timeout", timeout)
	}

	started := time.Now()
	s.events.Publish(events.TypeCompileStarted, events.CompileData{
		RequestID:   req.ID,
		Principal:   req.Principal,
		Remote:      req.Remote,
		SourceBytes: len(req.Source),
		TimeoutSec:  timeout.Seconds(),
	})
	logger.Info("compile started", "source_bytes", len(req.Source), "timeout", timeout)

	var (
		res    Result
		passes int
	)
	err = workspace.With(ctx, s.workspaces, func(ws workspace.Workspace) error {
		raw, err := s.engine.Compile(ctx, ws, req.Source, timeout)
		if err != nil {
			if e, ok := gwerr.As(err); ok && e.Kind == gwerr.KindTimeout {
				diag := extract.TimeoutDiagnostics(ws, e.Diagnostics, s.extract)
				e.Diagnostics = &diag
			}
			return err
		}
		passes = raw.Passes

		out, err := extract.Extract(ws, raw, s.extract)
		if err != nil {
			return err
		}
		if !out.Succeeded() {
			return out.Failure.Err()
		}
		res = Result{Artifact: out.Artifact, Name: out.Name, Passes: raw.Passes}
		return nil
	})
	res.Duration = time.Since(started)

	s.finish(ctx, logger, req, started, passes, res, err)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// finish publishes the terminal event, records metrics and writes the journal.
func (s *Service) finish(ctx context.Context, logger *slog.Logger, req Request, started time.Time, passes int, res Result, err error) {
	elapsed := time.Since(started)
	data := events.CompileData{
		RequestID:   req.ID,
		Principal:   req.Principal,
		Remote:      req.Remote,
		SourceBytes: len(req.Source),
		Passes:      passes,
		DurationMS:  elapsed.Milliseconds(),
	}
	entry := journal.Entry{
		RequestID:   req.ID,
		Principal:   req.Principal,
		RemoteAddr:  req.Remote,
		Passes:      passes,
		SourceBytes: len(req.Source),
		DurationMS:  elapsed.Milliseconds(),
		CreatedAt:   started,
	}

	var (
		eventType string
		outcome   metrics.Outcome
	)
	e, classified := gwerr.As(err)
	switch {
	case err == nil:
		eventType, outcome = events.TypeCompileSucceeded, metrics.OutcomeSuccess
		data.ArtifactBytes = len(res.Artifact)
		entry.ArtifactBytes = len(res.Artifact)
		s.metrics.ObserveArtifactBytes(len(res.Artifact))
		logger.Info("compile succeeded", "passes", passes, "artifact_bytes", len(res.Artifact), "duration_ms", elapsed.Milliseconds())

	case classified && e.Kind == gwerr.KindCompiler:
		eventType, outcome = events.TypeCompileFailed, metrics.OutcomeCompilerError
		data.Reason, entry.Reason = string(e.Reason), string(e.Reason)
		if e.Diagnostics != nil {
			data.ExitCode, entry.ExitCode = e.Diagnostics.ExitCode, e.Diagnostics.ExitCode
		}
		logger.Info("compile failed", "reason", e.Reason, "passes", passes)

	case classified && e.Kind == gwerr.KindTimeout:
		eventType, outcome = events.TypeCompileTimedOut, metrics.OutcomeTimeout
		data.Reason, entry.Reason = string(e.Reason), string(e.Reason)
		logger.Warn("compile timed out", "duration_ms", elapsed.Milliseconds())

	case ctx.Err() != nil:
		eventType, outcome = events.TypeCompileError, metrics.OutcomeCanceled
		data.Reason, entry.Reason = "canceled", "canceled"
		logger.Info("compile canceled by client", "error", err)

	default:
		eventType, outcome = events.TypeCompileError, metrics.OutcomeInternal
		reason := string(gwerr.ReasonUnexpected)
		if classified {
			reason = string(e.Reason)
		}
		data.Reason, entry.Reason = reason, reason
		logger.Error("compile internal error", "reason", reason, "error", err)
	}

	s.events.Publish(eventType, data)
	s.metrics.ObserveCompile(outcome, passes, elapsed)

	if s.journal == nil {
		return
	}
	entry.Outcome = string(outcome)
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalWriteTimeout)
	defer cancel()
	if jerr := s.journal.Record(jctx, entry); jerr != nil {
		logger.Error("failed to write compile journal", "error", jerr)
	}
}

// CheckEngine runs the engine version check and caches the result for
// health reporting.
func (s *Service) CheckEngine(ctx context.Context) (string, error) {
	version, err := s.engine.Version(ctx)

	s.mu.Lock()
	s.engineVersion, s.engineErr = version, err
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("engine version check failed", "error", err)
		return "", err
	}
	s.logger.Info("engine available", "version", version)
	return version, nil
}

// EngineStatus returns the cached engine version check.
func (s *Service) EngineStatus() (version string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engineVersion, s.engineErr
}

// ActiveWorkspaces reports in-flight workspaces.
func (s *Service) ActiveWorkspaces() int {
	return s.workspaces.Active()
}
