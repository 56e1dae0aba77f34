package doctor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/texgate/internal/config"
)

type fakeVersionChecker struct {
	version string
	err     error
}

func (f fakeVersionChecker) Version(context.Context) (string, error) { return f.version, f.err }

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.API.Auth.APIKey = "a-long-enough-test-key"
	cfg.Workspace.BaseDir = filepath.Join(t.TempDir(), "ws")
	return cfg
}

func newDoctor(cfg *config.Config, p VersionChecker) *Doctor {
	d := New(cfg, p)
	d.lookPath = func(bin string) (string, error) { return "/usr/bin/" + bin, nil }
	d.fsCheck = func(string) (string, error) { return "ext4", nil }
	return d
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	d := newDoctor(validConfig(t), fakeVersionChecker{version: "pdfTeX 3.141592653"})
	r := d.Validate(context.Background())
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if r.EngineVersion != "pdfTeX 3.141592653" {
		t.Fatalf("engine version = %q", r.EngineVersion)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", r.Warnings)
	}
}

func TestValidate_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.API.Auth.APIKey = ""
	r := newDoctor(cfg, fakeVersionChecker{version: "v"}).Validate(context.Background())
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "api", "api.auth.api_key")
}

func TestValidate_ShortAPIKeyWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.API.Auth.APIKey = "short"
	r := newDoctor(cfg, fakeVersionChecker{version: "v"}).Validate(context.Background())
	if !r.Valid {
		t.Fatalf("short key should only warn: %v", r.Errors)
	}
	assertHasWarning(t, r, "api", "api.auth.api_key")
}

func TestValidate_BadListen(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.API.Listen = "8080"
	r := newDoctor(cfg, fakeVersionChecker{version: "v"}).Validate(context.Background())
	assertHasError(t, r, "api", "api.listen")
}

func TestValidate_EngineMissing(t *testing.T) {
	t.Parallel()
	d := newDoctor(validConfig(t), fakeVersionChecker{version: "v"})
	d.lookPath = func(string) (string, error) { return "", errors.New("executable file not found in $PATH") }
	r := d.Validate(context.Background())
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "engine", "engine.binary")
}

func TestValidate_EngineVersionCheckFails(t *testing.T) {
	t.Parallel()
	r := newDoctor(validConfig(t), fakeVersionChecker{err: errors.New("exit status 1")}).Validate(context.Background())
	assertHasError(t, r, "engine", "engine.binary")
	if r.EngineVersion != "" {
		t.Fatalf("engine version = %q", r.EngineVersion)
	}
}

func TestValidate_WorkspaceNotWritable(t *testing.T) {
	t.Parallel()
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	cfg := validConfig(t)
	ro := filepath.Join(t.TempDir(), "ro")
	if err := os.Mkdir(ro, 0o500); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfg.Workspace.BaseDir = ro
	r := newDoctor(cfg, fakeVersionChecker{version: "v"}).Validate(context.Background())
	assertHasError(t, r, "workspace", "workspace.base_dir")
}

func TestValidate_WorkspaceBaseIsFile(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg.Workspace.BaseDir = file
	r := newDoctor(cfg, fakeVersionChecker{version: "v"}).Validate(context.Background())
	assertHasError(t, r, "workspace", "workspace.base_dir")
}

func TestValidate_JournalOnNetworkFilesystem(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.db")
	d := newDoctor(cfg, fakeVersionChecker{version: "v"})
	d.fsCheck = func(path string) (string, error) {
		if strings.HasSuffix(path, "journal.db") {
			return "nfs", errors.New("journal.db is on network filesystem \"nfs\"")
		}
		return "ext4", nil
	}
	r := d.Validate(context.Background())
	assertHasError(t, r, "journal", "journal.path")
}

func TestValidate_WorkspaceOnNetworkWarns(t *testing.T) {
	t.Parallel()
	d := newDoctor(validConfig(t), fakeVersionChecker{version: "v"})
	d.fsCheck = func(string) (string, error) { return "nfs", errors.New("network filesystem") }
	r := d.Validate(context.Background())
	if !r.Valid {
		t.Fatalf("network workspace should only warn: %v", r.Errors)
	}
	assertHasWarning(t, r, "workspace", "workspace.base_dir")
}

func TestValidate_WriteTimeoutBudget(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Engine.MaxTimeout = 5 * time.Minute
	cfg.API.WriteTimeout = time.Minute
	r := newDoctor(cfg, fakeVersionChecker{version: "v"}).Validate(context.Background())
	assertHasWarning(t, r, "api", "api.write_timeout")
}

func TestFormatHuman(t *testing.T) {
	t.Parallel()
	ok := FormatHuman(&Result{Valid: true, EngineVersion: "pdfTeX"})
	if !strings.Contains(ok, "All checks passed.") || !strings.Contains(ok, "Engine: pdfTeX") {
		t.Fatalf("unexpected output: %q", ok)
	}

	bad := FormatHuman(&Result{
		Valid:    false,
		Errors:   []Issue{{Category: "engine", Field: "engine.binary", Message: "not found"}},
		Warnings: []Issue{{Category: "api", Message: "short key"}},
	})
	if !strings.Contains(bad, "Checks failed (1 error(s), 1 warning(s))") {
		t.Fatalf("unexpected header: %q", bad)
	}
	if !strings.Contains(bad, "ERROR [engine] engine.binary: not found") || !strings.Contains(bad, "WARN  [api] short key") {
		t.Fatalf("unexpected body: %q", bad)
	}
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	out, err := FormatJSON(&Result{Valid: true, EngineVersion: "v"})
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}
	if !strings.Contains(out, `"valid": true`) || !strings.Contains(out, `"engine_version": "v"`) {
		t.Fatalf("unexpected json: %s", out)
	}
}

func assertHasError(t *testing.T, r *Result, category, field string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && e.Field == field {
			return
		}
	}
	t.Errorf("expected error with category=%q field=%q, got: %v", category, field, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, field string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && w.Field == field {
			return
		}
	}
	t.Errorf("expected warning with category=%q field=%q, got: %v", category, field, r.Warnings)
}
