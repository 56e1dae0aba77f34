package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Environment overrides, highest precedence first for the API key.
const (
	EnvAPIKey       = "TEXGATE_API_KEY"
	EnvLegacyAPIKey = "API_KEY"
	EnvListen       = "TEXGATE_LISTEN"
	EnvEngine       = "TEXGATE_ENGINE"
	EnvLogLevel     = "TEXGATE_LOG_LEVEL"
	EnvConfig       = "TEXGATE_CONFIG"
)

// Load builds the configuration. With an empty configPath only defaults,
// .env files and environment overrides apply. The result is treated as
// immutable by the rest of the service.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	envDirs := []string{"."}
	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("config file not found: %s\n"+
				"Hint: Check the path or run with --config flag", absPath)
		}
		if info.IsDir() {
			absPath = filepath.Join(absPath, "config.yaml")
		}
		if err := Verify(absPath); err != nil {
			return nil, fmt.Errorf("config integrity check failed: %w", err)
		}
		envDirs = append([]string{filepath.Dir(absPath)}, envDirs...)
		loadDotEnv(envDirs)

		if err := loadConfigFile(absPath, cfg); err != nil {
			return nil, err
		}
		cfg.SourcePath = absPath
	} else {
		loadDotEnv(envDirs)
	}

	applyEnvOverrides(cfg)
	applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Discover returns the config path from $TEXGATE_CONFIG, ./texgate.yaml or
// /etc/texgate/config.yaml, or "" when none exists (defaults-only mode).
func Discover() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	for _, candidate := range []string{"./texgate.yaml", "/etc/texgate/config.yaml"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// loadDotEnv loads .env then .env.local from each dir. Variables already in
// the process environment are never overwritten.
func loadDotEnv(dirs []string) {
	seen := make(map[string]bool)
	for _, dir := range dirs {
		for _, name := range []string{".env", ".env.local"} {
			path := filepath.Join(dir, name)
			abs, err := filepath.Abs(path)
			if err != nil || seen[abs] {
				continue
			}
			seen[abs] = true
			if _, err := os.Stat(abs); err != nil {
				continue
			}
			_ = godotenv.Load(abs)
		}
	}
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.API.Auth.APIKey = v
	} else if v := os.Getenv(EnvLegacyAPIKey); v != "" && cfg.API.Auth.APIKey == "" {
		cfg.API.Auth.APIKey = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		cfg.API.Listen = v
	}
	if v := os.Getenv(EnvEngine); v != "" {
		cfg.Engine.Binary = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Service.LogLevel = strings.ToLower(v)
	}
}

// applyConfigDefaults fills values a YAML file may have blanked out.
func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.API.DownloadName == "" {
		cfg.API.DownloadName = defaults.API.DownloadName
	}
	if cfg.Engine.SourceName == "" {
		cfg.Engine.SourceName = defaults.Engine.SourceName
	}
	if cfg.Workspace.BaseDir == "" {
		cfg.Workspace.BaseDir = filepath.Join(os.TempDir(), "texgate-workspaces")
	}
	if cfg.Events.Buffer <= 0 {
		cfg.Events.Buffer = defaults.Events.Buffer
	}
}

func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Leave the placeholder; validate reports it.
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if matches := envVarPattern.FindStringSubmatch(cfg.API.Auth.APIKey); len(matches) > 1 {
		return fmt.Errorf("api.auth.api_key: environment variable ${%s} is not set", matches[1])
	}
	if cfg.API.Listen == "" {
		return fmt.Errorf("api.listen is required")
	}
	if s := cfg.API.CompilerErrorStatus; s < 400 || s > 599 {
		return fmt.Errorf("api.compiler_error_status must be a 4xx or 5xx code (got %d)", s)
	}
	if cfg.API.MaxBodyBytes <= 0 {
		return fmt.Errorf("api.max_body_bytes must be positive")
	}
	if strings.ContainsAny(cfg.API.DownloadName, "/\\\"\r\n") {
		return fmt.Errorf("api.download_name must be a bare file name (got %q)", cfg.API.DownloadName)
	}

	e := cfg.Engine
	if strings.TrimSpace(e.Binary) == "" {
		return fmt.Errorf("engine.binary is required")
	}
	if e.SourceName != filepath.Base(e.SourceName) || filepath.Ext(e.SourceName) == "" {
		return fmt.Errorf("engine.source_name must be a bare file name with an extension (got %q)", e.SourceName)
	}
	if e.Passes < 1 || e.Passes > 2 {
		return fmt.Errorf("engine.passes must be 1 or 2 (got %d)", e.Passes)
	}
	if e.DefaultTimeout <= 0 {
		return fmt.Errorf("engine.default_timeout must be positive")
	}
	if e.MaxTimeout < e.DefaultTimeout {
		return fmt.Errorf("engine.max_timeout (%s) must be >= engine.default_timeout (%s)", e.MaxTimeout, e.DefaultTimeout)
	}
	if e.TerminationGrace < 0 {
		return fmt.Errorf("engine.termination_grace must not be negative")
	}
	if e.MaxOutputBytes <= 0 || e.TailChars <= 0 {
		return fmt.Errorf("engine.max_output_bytes and engine.tail_chars must be positive")
	}

	if cfg.Workspace.StaleAfter <= 0 {
		return fmt.Errorf("workspace.stale_after must be positive")
	}
	// A workspace can live for every pass at max_timeout plus the kill grace.
	if budget := time.Duration(e.Passes)*e.MaxTimeout + e.TerminationGrace; cfg.Workspace.StaleAfter <= budget {
		return fmt.Errorf("workspace.stale_after (%s) must exceed the longest compile, engine.passes x engine.max_timeout + engine.termination_grace (%s)",
			cfg.Workspace.StaleAfter, budget)
	}
	if cfg.Journal.Path != "" && cfg.Journal.Retention <= 0 {
		return fmt.Errorf("journal.retention must be positive when journal.path is set")
	}
	return nil
}

// ArtifactName derives the engine's output file from the source name
// (document.tex -> document.pdf).
func (e EngineConfig) ArtifactName() string {
	return strings.TrimSuffix(e.SourceName, filepath.Ext(e.SourceName)) + ".pdf"
}

// LogName derives the engine's log file from the source name.
func (e EngineConfig) LogName() string {
	return strings.TrimSuffix(e.SourceName, filepath.Ext(e.SourceName)) + ".log"
}
