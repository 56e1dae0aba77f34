package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/mattjoyce/texgate/internal/compile"
	"github.com/mattjoyce/texgate/internal/config"
	"github.com/mattjoyce/texgate/internal/engine"
	gwerr "github.com/mattjoyce/texgate/internal/errors"
	"github.com/mattjoyce/texgate/internal/log"
	"github.com/mattjoyce/texgate/internal/tui/watch"
	"github.com/mattjoyce/texgate/internal/workspace"
)

func runCompile(args []string) int {
	fs := pflag.NewFlagSet("compile", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	output := fs.StringP("output", "o", "", "Where to write the PDF (default: input name with .pdf)")
	timeout := fs.Duration("timeout", 0, "Per-pass timeout (default: engine.default_timeout)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: texgate compile <file.tex|-> [-o out.pdf] [--timeout 30s]")
		return 1
	}
	input := fs.Arg(0)

	cfg, err := config.Load(resolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	log.Setup("error", "text")

	source, err := readSource(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		return 1
	}

	dest := *output
	if dest == "" {
		dest = defaultOutputPath(input, cfg.API.DownloadName)
	}

	wsManager, err := workspace.NewFSManager(cfg.Workspace.BaseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Workspace error: %v\n", err)
		return 1
	}
	svc := compile.NewService(engine.New(cfg.Engine), wsManager, cfg.Engine)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := svc.Compile(ctx, compile.Request{
		ID:        "cli-" + uuid.NewString(),
		Source:    source,
		Timeout:   *timeout,
		Principal: "cli",
	})
	if err != nil {
		printCompileError(os.Stderr, err)
		return 1
	}

	if err := os.WriteFile(dest, res.Artifact, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
		return 1
	}
	fmt.Printf("Wrote %s (%d bytes, %d pass(es), %s)\n", dest, len(res.Artifact), res.Passes, res.Duration.Round(time.Millisecond))
	return 0
}

func readSource(input string) (string, error) {
	if input == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(input)
	return string(data), err
}

func defaultOutputPath(input, downloadName string) string {
	if input == "-" {
		return downloadName
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".pdf"
}

func printCompileError(w io.Writer, err error) {
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(w, "Compile canceled.")
		return
	}
	e, ok := gwerr.As(err)
	if !ok {
		fmt.Fprintf(w, "Compile error: %v\n", err)
		return
	}

	fmt.Fprintf(w, "Compile failed (%s/%s): %s\n", e.Kind, e.Reason, e.Message)
	d := e.Diagnostics
	if d == nil {
		return
	}
	if d.ExitCode != nil {
		fmt.Fprintf(w, "exit code: %d\n", *d.ExitCode)
	}
	for _, section := range []struct{ name, text string }{
		{"stdout", d.StdoutTail},
		{"stderr", d.StderrTail},
		{"log", d.LogTail},
	} {
		if strings.TrimSpace(section.text) == "" {
			continue
		}
		fmt.Fprintf(w, "--- %s (tail) ---\n%s\n", section.name, strings.TrimRight(section.text, "\n"))
	}
}

func runWatch(args []string) int {
	fs := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	apiURL := fs.String("api-url", "http://localhost:8080", "Gateway URL")
	apiKey := fs.String("api-key", os.Getenv(config.EnvAPIKey), "Shared secret sent as X-API-KEY")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *apiKey == "" {
		fmt.Fprintf(os.Stderr, "Error: API key required. Use --api-key or %s env var.\n", config.EnvAPIKey)
		return 1
	}

	m := watch.New(strings.TrimRight(*apiURL, "/"), *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
