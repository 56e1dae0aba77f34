package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/mattjoyce/texgate/internal/config"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)

	// --- VERBS ---
	case "compile":
		if hasHelpFlag(args) {
			printCompileHelp()
			return 0
		}
		return runCompile(args)
	case "doctor":
		if hasHelpFlag(args) {
			printDoctorHelp()
			return 0
		}
		return runDoctor(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := pflag.NewFlagSet("version", pflag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: texgate version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("texgate %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(built); ok {
		info.BuildTime = normalized
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`texgate - HTTP gateway that compiles LaTeX source into PDF

Usage:
  texgate <noun> <action> [flags]
  texgate <command> [flags]

System Commands:
  system start      Start the gateway in the foreground
  system status     Show config and PID lock state

Config Commands:
  config check      Load and validate the configuration
  config lock       Write BLAKE3 checksums for the config and .env files
  config show       Print the resolved configuration (API key redacted)

Commands:
  compile <file>    Compile a .tex file locally through the same pipeline
  doctor            Check engine, workspace and journal against this host
  watch             Live compile monitor for a running gateway

General:
  version           Show version information
  help              Show this help message

Config is read from --config, $TEXGATE_CONFIG, ./texgate.yaml or
/etc/texgate/config.yaml. Without a file, defaults and environment apply.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "status":
		if hasHelpFlag(actionArgs) {
			printSystemStatusHelp()
			return 0
		}
		return runSystemStatus(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: texgate system <action>")
	fmt.Fprintln(w, "Actions: start, status")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: texgate config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock, show")
}

func printSystemStartHelp() {
	fmt.Println("Usage: texgate system start [--config PATH]")
	fmt.Println("Start the gateway in the foreground. SIGINT/SIGTERM trigger a graceful shutdown.")
}

func printSystemStatusHelp() {
	fmt.Println("Usage: texgate system status [--config PATH] [--json]")
	fmt.Println("Show whether the configuration loads and whether a gateway holds the PID lock.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  Configuration loaded")
	fmt.Println("  1  Configuration failed to load")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: texgate config check [--config PATH] [--json]")
	fmt.Println("Load the configuration, verify checksums when present, and validate values.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: texgate config lock [--config PATH] [--dry-run]")
	fmt.Println("Write .checksums beside the config file covering it and any .env files.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: texgate config show [--config PATH] [--json]")
	fmt.Println("Print the resolved configuration. The API key is redacted.")
}

func printCompileHelp() {
	fmt.Println("Usage: texgate compile <file.tex|-> [-o out.pdf] [--timeout 30s] [--config PATH]")
	fmt.Println("Compile a document locally. Use - to read the source from stdin.")
	fmt.Println("Diagnostics are printed to stderr when the engine fails.")
}

func printDoctorHelp() {
	fmt.Println("Usage: texgate doctor [--config PATH] [--format human|json]")
	fmt.Println("Check the engine binary, workspace base, journal path and timeouts.")
}

func printWatchHelp() {
	fmt.Println("Usage: texgate watch [flags]")
	fmt.Println()
	fmt.Println("Live compile monitor. Shows gateway health, in-flight and recent compiles,")
	fmt.Println("and the event stream.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    Gateway URL (default: http://localhost:8080)")
	fmt.Println("  --api-key KEY    Shared secret (or TEXGATE_API_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Scroll compiles")
}

// resolveConfigPath returns the explicit path or the discovered one. An empty
// result means defaults plus environment.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return config.Discover()
}

// configFilePath maps a config directory onto its config.yaml, the same way
// config.Load does.
func configFilePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("no config file found; pass --config or set TEXGATE_CONFIG")
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s", path)
	}
	if info.IsDir() {
		return filepath.Join(path, "config.yaml"), nil
	}
	return path, nil
}
