package workspace

import (
	"context"
	"path/filepath"
	"time"
)

// Workspace is a directory owned by exactly one compile request. It holds the
// source file and everything the engine writes next to it.
type Workspace struct {
	ID        string
	Dir       string
	CreatedAt time.Time
}

// Path joins name onto the workspace directory.
func (w Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// SweepReport summarizes a sweep run.
type SweepReport struct {
	DeletedDirs int
}

// Manager governs the request workspace lifecycle.
type Manager interface {
	// Acquire creates a fresh, uniquely named workspace.
	Acquire(ctx context.Context) (Workspace, error)

	// Release recursively deletes ws. Releasing twice is not an error.
	Release(ws Workspace) error

	// Sweep removes leftover workspaces older than olderThan.
	Sweep(ctx context.Context, olderThan time.Duration) (SweepReport, error)

	// Active returns the number of acquired, unreleased workspaces.
	Active() int
}
