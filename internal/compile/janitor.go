package compile

import (
	"context"
	"log/slog"
	"time"

	"github.com/mattjoyce/texgate/internal/events"
	"github.com/mattjoyce/texgate/internal/log"
	"github.com/mattjoyce/texgate/internal/metrics"
	"github.com/mattjoyce/texgate/internal/workspace"
)

// Pruner trims old journal entries.
type Pruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// Janitor removes workspaces left behind by a crashed process and prunes
// the journal on a fixed interval.
type Janitor struct {
	Workspaces workspace.Manager
	StaleAfter time.Duration
	Interval   time.Duration

	Journal   Pruner
	Retention time.Duration

	Events  events.Publisher
	Metrics metrics.Recorder

	logger *slog.Logger
}

// Run sweeps once immediately, then every Interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	j.logger = log.WithComponent("janitor")
	if j.Events == nil {
		j.Events = events.Discard{}
	}
	if j.Metrics == nil {
		j.Metrics = metrics.NoopRecorder{}
	}

	j.RunOnce(ctx)
	if j.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and prune.
func (j *Janitor) RunOnce(ctx context.Context) {
	logger := j.logger
	if logger == nil {
		logger = log.WithComponent("janitor")
	}

	report, err := j.Workspaces.Sweep(ctx, j.StaleAfter)
	if err != nil {
		logger.Error("workspace sweep failed", "error", err)
	}
	if report.DeletedDirs > 0 {
		logger.Warn("removed stale workspaces", "count", report.DeletedDirs)
		if j.Metrics != nil {
			j.Metrics.IncSweptWorkspaces(report.DeletedDirs)
		}
		if j.Events != nil {
			j.Events.Publish(events.TypeWorkspaceSwept, events.SweepData{Deleted: report.DeletedDirs})
		}
	}

	if j.Journal == nil || j.Retention <= 0 {
		return
	}
	n, err := j.Journal.Prune(ctx, j.Retention)
	if err != nil {
		logger.Error("journal prune failed", "error", err)
		return
	}
	if n > 0 {
		logger.Info("pruned compile journal", "rows", n)
	}
}
