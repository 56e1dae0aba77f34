// Package doctor checks that a texgate deployment can actually serve
// compiles: engine reachable, workspace base writable, journal on local disk.
package doctor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattjoyce/texgate/internal/config"
	"github.com/mattjoyce/texgate/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid         bool    `json:"valid"`
	EngineVersion string  `json:"engine_version,omitempty"`
	Errors        []Issue `json:"errors,omitempty"`
	Warnings      []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// VersionChecker runs the engine version check.
type VersionChecker interface {
	Version(ctx context.Context) (string, error)
}

// Doctor validates a loaded config against the host it runs on.
type Doctor struct {
	cfg     *config.Config
	checker VersionChecker

	lookPath func(string) (string, error)
	fsCheck  func(string) (string, error)
}

// New creates a Doctor. checker is usually an *engine.Invoker built from cfg.Engine.
func New(cfg *config.Config, checker VersionChecker) *Doctor {
	return &Doctor{
		cfg:      cfg,
		checker:  checker,
		lookPath: exec.LookPath,
		fsCheck:  storage.CheckLocalFilesystem,
	}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}

	d.validateAPI(r)
	d.validateEngine(ctx, r)
	d.validateWorkspace(r)
	d.validateJournal(r)
	d.validatePIDFile(r)
	d.warnTimeoutBudget(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateAPI(r *Result) {
	if d.cfg.API.Auth.APIKey == "" {
		d.addError(r, "api", "api.auth.api_key",
			fmt.Sprintf("no API key configured; set %s (or %s) or api.auth.api_key, otherwise every compile is rejected",
				config.EnvAPIKey, config.EnvLegacyAPIKey))
	} else if len(d.cfg.API.Auth.APIKey) < 16 {
		d.addWarning(r, "api", "api.auth.api_key", "API key is shorter than 16 characters")
	}

	if _, _, err := net.SplitHostPort(d.cfg.API.Listen); err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.API.Listen, err))
	}
}

func (d *Doctor) validateEngine(ctx context.Context, r *Result) {
	bin := d.cfg.Engine.Binary
	if _, err := d.lookPath(bin); err != nil {
		d.addError(r, "engine", "engine.binary", fmt.Sprintf("engine %q not found: %v", bin, err))
		return
	}
	if d.checker == nil {
		return
	}
	version, err := d.checker.Version(ctx)
	if err != nil {
		d.addError(r, "engine", "engine.binary", fmt.Sprintf("engine %q failed its version check: %v", bin, err))
		return
	}
	r.EngineVersion = version
}

// validateWorkspace creates and removes a scratch directory under the base.
func (d *Doctor) validateWorkspace(r *Result) {
	base := d.cfg.Workspace.BaseDir
	if err := os.MkdirAll(base, 0o755); err != nil {
		d.addError(r, "workspace", "workspace.base_dir", fmt.Sprintf("cannot create %s: %v", base, err))
		return
	}
	dir, err := os.MkdirTemp(base, "doctor-")
	if err != nil {
		d.addError(r, "workspace", "workspace.base_dir", fmt.Sprintf("%s is not writable: %v", base, err))
		return
	}
	_ = os.RemoveAll(dir)

	// fsCheck rejects network filesystems; for workspaces that is only a warning.
	if fsType, err := d.fsCheck(base); err != nil && fsType != "" {
		d.addWarning(r, "workspace", "workspace.base_dir",
			fmt.Sprintf("%s is on %s; compiles will be slow on network storage", base, fsType))
	}
}

func (d *Doctor) validateJournal(r *Result) {
	path := d.cfg.Journal.Path
	if path == "" {
		return
	}
	if _, err := d.fsCheck(path); err != nil {
		d.addError(r, "journal", "journal.path", err.Error())
		return
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.addError(r, "journal", "journal.path", fmt.Sprintf("cannot create %s: %v", dir, err))
	}
}

func (d *Doctor) validatePIDFile(r *Result) {
	if d.cfg.Service.PIDFile == "" {
		return
	}
	dir := filepath.Dir(d.cfg.Service.PIDFile)
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		d.addError(r, "service", "service.pid_file", fmt.Sprintf("%s is not a directory", dir))
	}
}

// warnTimeoutBudget flags write timeouts that would cut off a slow compile
// before the engine gives up.
func (d *Doctor) warnTimeoutBudget(r *Result) {
	e := d.cfg.Engine
	worst := (e.MaxTimeout + e.TerminationGrace) * time.Duration(max(e.Passes, 1))
	if d.cfg.API.WriteTimeout > 0 && d.cfg.API.WriteTimeout < worst {
		d.addWarning(r, "api", "api.write_timeout",
			fmt.Sprintf("write_timeout %s is shorter than the worst-case compile (%s); long compiles will lose their response",
				d.cfg.API.WriteTimeout, worst))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.EngineVersion != "" {
		fmt.Fprintf(&b, "Engine: %s\n", r.EngineVersion)
	}

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("All checks passed.\n")
		return b.String()
	case r.Valid:
		fmt.Fprintf(&b, "All checks passed (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Checks failed (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
