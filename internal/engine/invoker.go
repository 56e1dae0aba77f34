package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/texgate/internal/config"
	gwerr "github.com/mattjoyce/texgate/internal/errors"
	"github.com/mattjoyce/texgate/internal/log"
	"github.com/mattjoyce/texgate/internal/workspace"
)

const (
	defaultMaxOutputBytes = 64 * 1024

	// minWaitDelay bounds how long Wait blocks on pipes still held open by
	// an orphaned child after the engine itself exited.
	minWaitDelay = time.Second

	versionTimeout = 10 * time.Second

	// pass1Suffix names the pass 1 artifact copy kept while pass 2 runs.
	pass1Suffix = ".pass1"
)

// RawResult is what the engine reported for the authoritative pass.
type RawResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	// Passes is how many passes ran; Pass is the one whose result this is.
	Passes   int
	Pass     int
	Duration time.Duration
}

// Invoker runs the configured engine binary.
type Invoker struct {
	cfg    config.EngineConfig
	logger *slog.Logger
}

// New creates an Invoker for cfg.
func New(cfg config.EngineConfig) *Invoker {
	if cfg.Passes < 1 {
		cfg.Passes = 1
	}
	if cfg.Passes > 2 {
		cfg.Passes = 2
	}
	return &Invoker{
		cfg:    cfg,
		logger: log.WithComponent("engine"),
	}
}

// Binary returns the configured engine binary.
func (inv *Invoker) Binary() string {
	return inv.cfg.Binary
}

// Compile writes source into ws and runs the engine for up to two passes,
// each bounded by timeout.
func (inv *Invoker) Compile(ctx context.Context, ws workspace.Workspace, source string, timeout time.Duration) (RawResult, error) {
	if timeout <= 0 {
		return RawResult{}, gwerr.Validation(gwerr.ReasonInvalidTimeout, "timeout must be positive")
	}
	if err := os.WriteFile(ws.Path(inv.cfg.SourceName), []byte(source), 0o600); err != nil {
		return RawResult{}, gwerr.Internal(gwerr.ReasonFilesystem, "write source file", err)
	}

	logger := inv.logger.With("workspace", ws.ID)
	start := time.Now()

	first, err := inv.runPass(ctx, ws, timeout, 1, logger)
	if err != nil {
		return RawResult{}, err
	}
	first.Passes, first.Pass = 1, 1
	if first.ExitCode != 0 || inv.cfg.Passes < 2 {
		first.Duration = time.Since(start)
		return first, nil
	}

	artifact := ws.Path(inv.cfg.ArtifactName())
	saved := preserve(artifact)

	second, err := inv.runPass(ctx, ws, timeout, 2, logger)
	switch {
	case err != nil && ctx.Err() != nil:
		discard(saved)
		return RawResult{}, err
	case err != nil && gwerr.IsKind(err, gwerr.KindTimeout):
		logger.Warn("refinement pass timed out, keeping pass 1 result")
	case err != nil:
		logger.Warn("refinement pass did not run, keeping pass 1 result", "error", err)
	case second.ExitCode == 0:
		discard(saved)
		second.Passes, second.Pass = 2, 2
		second.Duration = time.Since(start)
		return second, nil
	default:
		logger.Warn("refinement pass failed, keeping pass 1 result", "exit_code", second.ExitCode)
	}

	if saved != "" {
		if err := os.Rename(saved, artifact); err != nil {
			return RawResult{}, gwerr.Internal(gwerr.ReasonFilesystem, "restore pass 1 artifact", err)
		}
	}
	first.Passes = 2
	first.Duration = time.Since(start)
	return first, nil
}

// runPass executes one engine invocation. A non-zero exit is a result, not an
// error. Errors are timeouts, cancellation, or a failure to start.
func (inv *Invoker) runPass(ctx context.Context, ws workspace.Workspace, timeout time.Duration, pass int, logger *slog.Logger) (RawResult, error) {
	if err := ctx.Err(); err != nil {
		return RawResult{}, err
	}

	timeoutTimer := time.NewTimer(timeout)
	defer timeoutTimer.Stop()

	// Not CommandContext: termination is managed here so the whole group is signalled.
	cmd := exec.Command(inv.cfg.Binary, inv.args(ws)...)
	cmd.Dir = ws.Dir
	cmd.Env = inv.environ()
	isolate(cmd)
	cmd.WaitDelay = max(inv.cfg.TerminationGrace, minWaitDelay)

	stdout := newTailBuffer(inv.cfg.MaxOutputBytes)
	stderr := newTailBuffer(inv.cfg.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.Debug("starting engine", "binary", inv.cfg.Binary, "pass", pass, "timeout", timeout)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return RawResult{}, gwerr.Internal(gwerr.ReasonEngineUnavailable, "start engine", err)
	}
	// Sweep up anything the engine left behind in its group.
	defer func() { _ = signalGroup(cmd, syscall.SIGKILL) }()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	select {
	case <-timeoutTimer.C:
		logger.Warn("engine timed out, sending SIGTERM", "pass", pass, "timeout", timeout)
		inv.terminate(cmd, waitErr, logger)
		return RawResult{}, gwerr.Timeout(
			fmt.Sprintf("compilation exceeded %s", timeout),
			gwerr.Diagnostics{StdoutTail: stdout.String(), StderrTail: stderr.String()},
		)

	case <-ctx.Done():
		logger.Warn("request canceled, terminating engine", "pass", pass)
		inv.terminate(cmd, waitErr, logger)
		return RawResult{}, fmt.Errorf("engine pass %d: %w", pass, ctx.Err())

	case err := <-waitErr:
		res := RawResult{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Duration: time.Since(started),
		}
		var exitErr *exec.ExitError
		switch {
		case err == nil, errors.Is(err, exec.ErrWaitDelay):
			res.ExitCode = 0
		case errors.As(err, &exitErr):
			res.ExitCode = exitErr.ExitCode()
			logger.Info("engine exited with non-zero status", "pass", pass, "exit_code", res.ExitCode)
		default:
			return RawResult{}, gwerr.Internal(gwerr.ReasonUnexpected, "wait for engine", err)
		}
		if stdout.Dropped() > 0 || stderr.Dropped() > 0 {
			logger.Debug("engine output truncated", "stdout_dropped", stdout.Dropped(), "stderr_dropped", stderr.Dropped())
		}
		return res, nil
	}
}

// terminate sends SIGTERM to the group, then SIGKILL once the grace period
// runs out, and waits for the engine to be reaped.
func (inv *Invoker) terminate(cmd *exec.Cmd, waitErr <-chan error, logger *slog.Logger) {
	if err := signalGroup(cmd, syscall.SIGTERM); err != nil {
		logger.Error("failed to send SIGTERM", "error", err)
	}

	grace := time.NewTimer(inv.cfg.TerminationGrace)
	defer grace.Stop()

	select {
	case <-waitErr:
		logger.Info("engine exited after SIGTERM")
	case <-grace.C:
		logger.Warn("engine did not exit after SIGTERM, sending SIGKILL")
		if err := signalGroup(cmd, syscall.SIGKILL); err != nil {
			logger.Error("failed to send SIGKILL", "error", err)
		}
		<-waitErr
	}
}

func (inv *Invoker) args(ws workspace.Workspace) []string {
	args := make([]string, 0, len(inv.cfg.Args)+3)
	args = append(args, inv.cfg.Args...)
	if inv.cfg.OutputDirFlag != "" {
		args = append(args, inv.cfg.OutputDirFlag, ws.Dir)
	}
	return append(args, inv.cfg.SourceName)
}

func (inv *Invoker) environ() []string {
	env := os.Environ()
	keys := make([]string, 0, len(inv.cfg.Env))
	for k := range inv.cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+inv.cfg.Env[k])
	}
	return env
}

// Version runs `<binary> --version` and returns the first line of its output.
func (inv *Invoker) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, inv.cfg.Binary, "--version")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s --version: %w", inv.cfg.Binary, err)
	}

	line, _ := bufio.NewReader(&out).ReadString('\n')
	return strings.TrimSpace(line), nil
}

// preserve copies the pass 1 artifact aside. It returns "" when there is
// nothing to keep.
func preserve(artifact string) string {
	data, err := os.ReadFile(artifact)
	if err != nil {
		return ""
	}
	saved := artifact + pass1Suffix
	if err := os.WriteFile(saved, data, 0o600); err != nil {
		return ""
	}
	return saved
}

func discard(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}
