package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/mattjoyce/texgate/internal/api"
	"github.com/mattjoyce/texgate/internal/compile"
	"github.com/mattjoyce/texgate/internal/config"
	"github.com/mattjoyce/texgate/internal/engine"
	"github.com/mattjoyce/texgate/internal/events"
	"github.com/mattjoyce/texgate/internal/journal"
	"github.com/mattjoyce/texgate/internal/lock"
	"github.com/mattjoyce/texgate/internal/log"
	"github.com/mattjoyce/texgate/internal/metrics"
	"github.com/mattjoyce/texgate/internal/storage"
	"github.com/mattjoyce/texgate/internal/workspace"
)

func runStart(args []string) int {
	fs := pflag.NewFlagSet("start", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	path := resolveConfigPath(*configPath)
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("texgate starting", "version", currentVersionInfo().Version, "config", cfg.SourcePath)

	if cfg.Service.PIDFile != "" {
		pidLock, err := lock.AcquirePIDLock(cfg.Service.PIDFile)
		if err != nil {
			logger.Error("failed to acquire PID lock (another instance may be running)", "path", cfg.Service.PIDFile, "error", err)
			return 1
		}
		defer func() { _ = pidLock.Release() }()
		logger.Info("acquired PID lock", "path", cfg.Service.PIDFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wsManager, err := workspace.NewFSManager(cfg.Workspace.BaseDir)
	if err != nil {
		logger.Error("failed to initialize workspace manager", "base_dir", cfg.Workspace.BaseDir, "error", err)
		return 1
	}

	hub := events.NewHub(cfg.Events.Buffer)
	svcOpts := []compile.Option{compile.WithEvents(hub)}
	apiOpts := []api.Option{api.WithEvents(hub)}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		prom := metrics.NewPrometheusRecorder(reg, wsManager.Active)
		recorder = prom
		svcOpts = append(svcOpts, compile.WithMetrics(prom))
		apiOpts = append(apiOpts, api.WithMetrics(prom, metrics.HTTPHandler(reg)))
		logger.Info("metrics enabled", "path", "/metrics")
	}

	var pruner compile.Pruner
	if cfg.Journal.Path != "" {
		db, err := storage.OpenSQLite(ctx, cfg.Journal.Path)
		if err != nil {
			logger.Error("failed to open journal", "path", cfg.Journal.Path, "error", err)
			return 1
		}
		defer db.Close()
		j := journal.New(db)
		svcOpts = append(svcOpts, compile.WithJournal(j))
		apiOpts = append(apiOpts, api.WithCompileLog(j))
		pruner = j
		logger.Info("journal opened", "path", cfg.Journal.Path, "retention", cfg.Journal.Retention)
	}

	svc := compile.NewService(engine.New(cfg.Engine), wsManager, cfg.Engine, svcOpts...)
	if v, err := svc.CheckEngine(ctx); err != nil {
		// Keep serving; /health reports the engine as unavailable.
		logger.Warn("engine check failed", "binary", cfg.Engine.Binary, "error", err)
	} else {
		logger.Info("engine available", "binary", cfg.Engine.Binary, "version", v)
	}

	janitor := &compile.Janitor{
		Workspaces: wsManager,
		StaleAfter: cfg.Workspace.StaleAfter,
		Interval:   cfg.Workspace.SweepInterval,
		Journal:    pruner,
		Retention:  cfg.Journal.Retention,
		Events:     hub,
		Metrics:    recorder,
	}
	go janitor.Run(ctx)

	server := api.New(api.ConfigFrom(cfg, currentVersionInfo().Version), svc, log.WithComponent("api"), apiOpts...)

	logger.Info("texgate running (press Ctrl+C to stop)", "listen", cfg.API.Listen, "workspaces", wsManager.BaseDir())
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("api server failed", "error", err)
		return 1
	}

	logger.Info("texgate stopped")
	return 0
}

type systemStatus struct {
	Config    string `json:"config"`
	ConfigOK  bool   `json:"config_ok"`
	Error     string `json:"error,omitempty"`
	Listen    string `json:"listen,omitempty"`
	PIDFile   string `json:"pid_file,omitempty"`
	Running   bool   `json:"running"`
	PID       int    `json:"pid,omitempty"`
	LockError string `json:"lock_error,omitempty"`
	Checksums bool   `json:"checksums"`
	Journal   string `json:"journal,omitempty"`
}

func runSystemStatus(args []string) int {
	fs := pflag.NewFlagSet("status", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output status as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	path := resolveConfigPath(*configPath)
	st := systemStatus{Config: path}
	if st.Config == "" {
		st.Config = "(defaults)"
	}

	cfg, err := config.Load(path)
	if err != nil {
		st.Error = err.Error()
	} else {
		st.ConfigOK = true
		st.Listen = cfg.API.Listen
		st.PIDFile = cfg.Service.PIDFile
		st.Journal = cfg.Journal.Path
		if cfg.SourcePath != "" {
			st.Config = cfg.SourcePath
			st.Checksums = config.HasManifest(cfg.SourcePath)
		}
		if st.PIDFile != "" {
			pid, held, err := lock.Holder(st.PIDFile)
			switch {
			case err != nil:
				st.LockError = err.Error()
			case held:
				st.Running = true
				st.PID = pid
			}
		}
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(st, "", "  ")
		fmt.Println(string(data))
	} else {
		printSystemStatus(st)
	}

	if !st.ConfigOK {
		return 1
	}
	return 0
}

func printSystemStatus(st systemStatus) {
	fmt.Printf("config:    %s\n", st.Config)
	if !st.ConfigOK {
		fmt.Printf("status:    INVALID (%s)\n", st.Error)
		return
	}
	fmt.Println("status:    OK")
	fmt.Printf("listen:    %s\n", st.Listen)
	if st.Checksums {
		fmt.Println("checksums: locked")
	} else {
		fmt.Println("checksums: none")
	}
	if st.Journal != "" {
		fmt.Printf("journal:   %s\n", st.Journal)
	}
	switch {
	case st.PIDFile == "":
		fmt.Println("gateway:   unknown (service.pid_file not set)")
	case st.LockError != "":
		fmt.Printf("gateway:   unknown (%s)\n", st.LockError)
	case st.Running:
		fmt.Printf("gateway:   running (pid %d)\n", st.PID)
	default:
		fmt.Println("gateway:   not running")
	}
}
