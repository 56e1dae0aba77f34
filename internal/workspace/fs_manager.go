package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/texgate/internal/log"
)

// dirPrefix marks directories created by this package. Sweep ignores anything else.
const dirPrefix = "ws-"

// fsWorkspaceManager manages per-request workspace directories on local disk.
type fsWorkspaceManager struct {
	baseDir string
	now     func() time.Time
	newID   func() string
	active  atomic.Int64
	// live holds the IDs currently on loan. Sweep never touches them.
	live sync.Map
}

var _ Manager = (*fsWorkspaceManager)(nil)

// NewFSManager creates a filesystem-backed workspace manager rooted at baseDir.
func NewFSManager(baseDir string) (*fsWorkspaceManager, error) {
	trimmed := strings.TrimSpace(baseDir)
	if trimmed == "" {
		return nil, fmt.Errorf("workspace base directory is empty")
	}

	return &fsWorkspaceManager{
		baseDir: filepath.Clean(trimmed),
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}, nil
}

// BaseDir returns the directory workspaces are created under.
func (m *fsWorkspaceManager) BaseDir() string {
	return m.baseDir
}

// Acquire creates baseDir/ws-<uuid> with owner-only permissions.
func (m *fsWorkspaceManager) Acquire(ctx context.Context) (Workspace, error) {
	if err := ctx.Err(); err != nil {
		return Workspace{}, err
	}

	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return Workspace{}, fmt.Errorf("create workspace base directory: %w", err)
	}

	id := dirPrefix + m.newID()
	path, err := m.workspacePath(id)
	if err != nil {
		return Workspace{}, err
	}
	// Mkdir, not MkdirAll: an existing directory means a name collision.
	if err := os.Mkdir(path, 0o700); err != nil {
		return Workspace{}, fmt.Errorf("create workspace %q: %w", id, err)
	}

	m.live.Store(id, struct{}{})
	m.active.Add(1)
	return Workspace{ID: id, Dir: path, CreatedAt: m.now()}, nil
}

// Release removes the workspace tree. The loan ends even when the
// directory has already disappeared; releasing twice is a no-op.
func (m *fsWorkspaceManager) Release(ws Workspace) error {
	path, err := m.workspacePath(ws.ID)
	if err != nil {
		return err
	}
	if path != filepath.Clean(ws.Dir) {
		return fmt.Errorf("workspace %q does not belong to %s", ws.ID, m.baseDir)
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove workspace %q: %w", ws.ID, err)
	}
	if _, loaned := m.live.LoadAndDelete(ws.ID); loaned {
		m.active.Add(-1)
	}
	return nil
}

// Active returns the number of workspaces currently on loan.
func (m *fsWorkspaceManager) Active() int {
	return int(m.active.Load())
}

// Sweep removes ws-* directories whose modification time is older than
// olderThan. Those are leftovers from a crashed process. Workspaces this
// manager has on loan are skipped whatever their age.
func (m *fsWorkspaceManager) Sweep(ctx context.Context, olderThan time.Duration) (SweepReport, error) {
	if err := ctx.Err(); err != nil {
		return SweepReport{}, err
	}
	if olderThan <= 0 {
		return SweepReport{}, fmt.Errorf("olderThan must be positive")
	}

	entries, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return SweepReport{}, nil
	}
	if err != nil {
		return SweepReport{}, fmt.Errorf("read workspace base directory: %w", err)
	}

	cutoff := m.now().Add(-olderThan)
	report := SweepReport{}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), dirPrefix) {
			continue
		}
		if _, loaned := m.live.Load(entry.Name()); loaned {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return report, fmt.Errorf("read workspace entry info %q: %w", entry.Name(), err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(m.baseDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return report, fmt.Errorf("remove workspace %q: %w", entry.Name(), err)
		}
		report.DeletedDirs++
	}

	return report, nil
}

func (m *fsWorkspaceManager) workspacePath(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	return filepath.Join(m.baseDir, id), nil
}

func validateID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("workspace id is empty")
	}
	if trimmed == "." || trimmed == ".." {
		return fmt.Errorf("workspace id %q is invalid", id)
	}
	if strings.Contains(trimmed, "/") || strings.Contains(trimmed, `\`) {
		return fmt.Errorf("workspace id %q must not contain path separators", id)
	}
	if filepath.Clean(trimmed) != trimmed || !strings.HasPrefix(trimmed, dirPrefix) {
		return fmt.Errorf("workspace id %q is invalid", id)
	}
	return nil
}

// With acquires a workspace, runs fn in it and releases it on every exit
// path. A panic in fn propagates after the workspace is gone. A release
// failure is logged and only returned when fn itself succeeded.
func With(ctx context.Context, m Manager, fn func(Workspace) error) (err error) {
	ws, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := m.Release(ws); relErr != nil {
			log.WithComponent("workspace").Error("workspace release failed",
				"workspace", ws.ID, "error", relErr)
			if err == nil {
				err = relErr
			}
		}
	}()
	return fn(ws)
}
