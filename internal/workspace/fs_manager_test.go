package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *fsWorkspaceManager {
	t.Helper()
	mgr, err := NewFSManager(filepath.Join(t.TempDir(), "workspaces"))
	if err != nil {
		t.Fatalf("NewFSManager() error = %v", err)
	}
	return mgr
}

func TestNewFSManagerRejectsEmptyBase(t *testing.T) {
	if _, err := NewFSManager("  "); err == nil {
		t.Fatal("expected error for empty base directory")
	}
}

func TestFSWorkspaceManagerAcquireAndRelease(t *testing.T) {
	mgr := newTestManager(t)

	ws, err := mgr.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !strings.HasPrefix(ws.ID, "ws-") {
		t.Fatalf("Acquire() id = %q, want ws- prefix", ws.ID)
	}
	if filepath.Dir(ws.Dir) != mgr.BaseDir() {
		t.Fatalf("Acquire() dir = %q, want under %q", ws.Dir, mgr.BaseDir())
	}

	info, err := os.Stat(ws.Dir)
	if err != nil {
		t.Fatalf("Stat(workspace) error = %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("workspace path is not a directory")
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Fatalf("workspace perm = %o, want 700", perm)
	}
	if mgr.Active() != 1 {
		t.Fatalf("Active() = %d, want 1", mgr.Active())
	}

	if err := os.WriteFile(ws.Path("document.tex"), []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.MkdirAll(ws.Path("nested/deep"), 0o700); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	if err := mgr.Release(ws); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(ws.Dir); !os.IsNotExist(err) {
		t.Fatalf("workspace should be removed, err = %v", err)
	}
	if mgr.Active() != 0 {
		t.Fatalf("Active() = %d, want 0", mgr.Active())
	}

	// Second release is a no-op.
	if err := mgr.Release(ws); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
	if mgr.Active() != 0 {
		t.Fatalf("Active() after double release = %d, want 0", mgr.Active())
	}
}

func TestFSWorkspaceManagerUniqueNames(t *testing.T) {
	mgr := newTestManager(t)

	const n = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ws, err := mgr.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			mu.Lock()
			seen[ws.Dir] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("got %d distinct workspaces, want %d", len(seen), n)
	}
}

func TestFSWorkspaceManagerCollisionFails(t *testing.T) {
	mgr := newTestManager(t)
	mgr.newID = func() string { return "fixed" }

	if _, err := mgr.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	if _, err := mgr.Acquire(context.Background()); err == nil {
		t.Fatal("expected collision error on reused name")
	}
}

func TestFSWorkspaceManagerReleaseRejectsForeignDir(t *testing.T) {
	mgr := newTestManager(t)
	outside := t.TempDir()

	err := mgr.Release(Workspace{ID: "ws-x", Dir: outside})
	if err == nil {
		t.Fatal("expected error releasing a directory outside the base")
	}
	if _, statErr := os.Stat(outside); statErr != nil {
		t.Fatalf("foreign directory must survive, err = %v", statErr)
	}

	if err := mgr.Release(Workspace{ID: "../etc", Dir: "/etc"}); err == nil {
		t.Fatal("expected error for traversal id")
	}
}

func TestFSWorkspaceManagerAcquireCanceled(t *testing.T) {
	mgr := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := mgr.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire() error = %v, want context.Canceled", err)
	}
}

func TestFSWorkspaceManagerSweep(t *testing.T) {
	mgr := newTestManager(t)

	// A previous process left oldWS behind.
	crashed, err := NewFSManager(mgr.BaseDir())
	if err != nil {
		t.Fatalf("NewFSManager() error = %v", err)
	}
	oldWS, err := crashed.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire(old) error = %v", err)
	}
	newWS, err := mgr.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire(new) error = %v", err)
	}
	unrelated := filepath.Join(mgr.BaseDir(), "keep-me")
	if err := os.Mkdir(unrelated, 0o755); err != nil {
		t.Fatalf("Mkdir(unrelated) error = %v", err)
	}

	oldTime := time.Now().Add(-48 * time.Hour)
	for _, dir := range []string{oldWS.Dir, unrelated} {
		if err := os.Chtimes(dir, oldTime, oldTime); err != nil {
			t.Fatalf("Chtimes(%s) error = %v", dir, err)
		}
	}

	report, err := mgr.Sweep(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if report.DeletedDirs != 1 {
		t.Fatalf("Sweep() deleted = %d, want 1", report.DeletedDirs)
	}

	if _, err := os.Stat(oldWS.Dir); !os.IsNotExist(err) {
		t.Fatalf("old workspace should be deleted, err = %v", err)
	}
	if _, err := os.Stat(newWS.Dir); err != nil {
		t.Fatalf("new workspace should still exist, err = %v", err)
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Fatalf("non-workspace directory should be left alone, err = %v", err)
	}
}

func TestSweepSkipsWorkspacesOnLoan(t *testing.T) {
	mgr := newTestManager(t)

	ws, err := mgr.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	backdated := time.Now().Add(-2 * time.Minute)
	if err := os.Chtimes(ws.Dir, backdated, backdated); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	report, err := mgr.Sweep(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if report.DeletedDirs != 0 {
		t.Fatalf("Sweep() deleted = %d, want 0", report.DeletedDirs)
	}
	if _, err := os.Stat(ws.Dir); err != nil {
		t.Fatalf("workspace on loan was removed: %v", err)
	}

	if err := mgr.Release(ws); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if got := mgr.Active(); got != 0 {
		t.Fatalf("Active() = %d, want 0", got)
	}

	// Once returned, the same directory age is fair game.
	if err := os.Mkdir(ws.Dir, 0o700); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	if err := os.Chtimes(ws.Dir, backdated, backdated); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}
	report, err = mgr.Sweep(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if report.DeletedDirs != 1 {
		t.Fatalf("Sweep() deleted = %d, want 1", report.DeletedDirs)
	}
}

func TestReleaseAfterDirectoryVanished(t *testing.T) {
	mgr := newTestManager(t)

	ws, err := mgr.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := os.RemoveAll(ws.Dir); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}

	if err := mgr.Release(ws); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if got := mgr.Active(); got != 0 {
		t.Fatalf("Active() = %d after releasing a vanished workspace, want 0", got)
	}
	if err := mgr.Release(ws); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
	if got := mgr.Active(); got != 0 {
		t.Fatalf("Active() = %d after double release, want 0", got)
	}
}

func TestSweepMissingBaseDir(t *testing.T) {
	mgr := newTestManager(t)
	report, err := mgr.Sweep(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if report.DeletedDirs != 0 {
		t.Fatalf("Sweep() deleted = %d, want 0", report.DeletedDirs)
	}
	if _, err := mgr.Sweep(context.Background(), 0); err == nil {
		t.Fatal("expected error for non-positive threshold")
	}
}

func TestWithReleasesOnEveryPath(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mgr := newTestManager(t)
		var dir string
		err := With(context.Background(), mgr, func(ws Workspace) error {
			dir = ws.Dir
			return os.WriteFile(ws.Path("a"), []byte("a"), 0o600)
		})
		if err != nil {
			t.Fatalf("With() error = %v", err)
		}
		assertGone(t, dir)
		assertEmptyBase(t, mgr)
	})

	t.Run("error", func(t *testing.T) {
		mgr := newTestManager(t)
		boom := errors.New("boom")
		var dir string
		err := With(context.Background(), mgr, func(ws Workspace) error {
			dir = ws.Dir
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("With() error = %v, want boom", err)
		}
		assertGone(t, dir)
		assertEmptyBase(t, mgr)
	})

	t.Run("panic", func(t *testing.T) {
		mgr := newTestManager(t)
		var dir string
		func() {
			defer func() {
				if r := recover(); r == nil {
					t.Fatal("expected panic to propagate")
				}
			}()
			_ = With(context.Background(), mgr, func(ws Workspace) error {
				dir = ws.Dir
				panic("engine exploded")
			})
		}()
		assertGone(t, dir)
		assertEmptyBase(t, mgr)
	})
}

func assertGone(t *testing.T, dir string) {
	t.Helper()
	if dir == "" {
		t.Fatal("callback never ran")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("workspace %s should be removed, err = %v", dir, err)
	}
}

func assertEmptyBase(t *testing.T, mgr *fsWorkspaceManager) {
	t.Helper()
	entries, err := os.ReadDir(mgr.BaseDir())
	if err != nil {
		t.Fatalf("ReadDir(base) error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("base dir has %d leftover entries", len(entries))
	}
	if mgr.Active() != 0 {
		t.Fatalf("Active() = %d, want 0", mgr.Active())
	}
}
