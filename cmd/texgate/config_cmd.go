package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/texgate/internal/config"
	"github.com/mattjoyce/texgate/internal/doctor"
	"github.com/mattjoyce/texgate/internal/engine"
)

const redacted = "<redacted>"

func runConfigCheck(args []string) int {
	fs := pflag.NewFlagSet("check", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output result as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	path := resolveConfigPath(*configPath)
	cfg, err := config.Load(path)

	result := struct {
		Valid     bool   `json:"valid"`
		Config    string `json:"config"`
		Checksums bool   `json:"checksums"`
		Error     string `json:"error,omitempty"`
	}{Config: path}
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Valid = true
		result.Config = cfg.SourcePath
		if cfg.SourcePath != "" {
			result.Checksums = config.HasManifest(cfg.SourcePath)
		}
	}
	if result.Config == "" {
		result.Config = "(defaults)"
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else if result.Valid {
		fmt.Printf("Configuration valid: %s\n", result.Config)
		if result.Checksums {
			fmt.Println("Checksums verified.")
		} else {
			fmt.Println("No checksums (run 'texgate config lock' to pin the config).")
		}
	} else {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %s\n", result.Error)
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runConfigLock(args []string) int {
	fs := pflag.NewFlagSet("lock", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	dryRun := fs.Bool("dry-run", false, "Print hashes without writing .checksums")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	path, err := configFilePath(resolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	report, err := config.Lock(path, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock failed: %v\n", err)
		return 1
	}

	for _, f := range report.Files {
		if !f.Exists {
			fmt.Printf("SKIP %s: not found (optional)\n", f.Filename)
			continue
		}
		fmt.Printf("HASH %s: %s\n", f.Filename, f.Hash)
	}
	if *dryRun {
		fmt.Printf("DRY-RUN %s: not written\n", report.ChecksumPath)
		return 0
	}
	fmt.Printf("Wrote %s\n", report.ChecksumPath)
	return 0
}

func runConfigShow(args []string) int {
	fs := pflag.NewFlagSet("show", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON instead of YAML")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(resolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	shown := *cfg
	if shown.API.Auth.APIKey != "" {
		shown.API.Auth.APIKey = redacted
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(shown, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	data, err := yaml.Marshal(shown)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Render error: %v\n", err)
		return 1
	}
	fmt.Print(string(data))
	return 0
}

func runDoctor(args []string) int {
	fs := pflag.NewFlagSet("doctor", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	format := fs.String("format", "human", "Output format: human or json")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if *format != "human" && *format != "json" {
		fmt.Fprintf(os.Stderr, "Unknown format %q (want human or json)\n", *format)
		return 1
	}

	cfg, err := config.Load(resolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result := doctor.New(cfg, engine.New(cfg.Engine)).Validate(ctx)
	if *format == "json" {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Render error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}
