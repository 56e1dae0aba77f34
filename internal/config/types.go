package config

import "time"

// Config represents the complete texgate configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	API       APIConfig       `yaml:"api"`
	Engine    EngineConfig    `yaml:"engine"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Journal   JournalConfig   `yaml:"journal"`
	Events    EventsConfig    `yaml:"events"`

	// SourcePath is the file the config was loaded from; empty for pure defaults.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	PIDFile   string `yaml:"pid_file,omitempty"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Listen              string        `yaml:"listen"`
	DownloadName        string        `yaml:"download_name"`
	CompilerErrorStatus int           `yaml:"compiler_error_status"`
	MaxBodyBytes        int64         `yaml:"max_body_bytes"`
	ReadTimeout         time.Duration `yaml:"read_timeout"`
	WriteTimeout        time.Duration `yaml:"write_timeout"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`
	Auth                APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines the shared-secret gate.
type APIAuthConfig struct {
	APIKey string `yaml:"api_key"`
	// ProtectHealth requires X-API-KEY on GET /health as well as on /compile.
	ProtectHealth bool `yaml:"protect_health"`
}

// EngineConfig describes how the external typesetting binary is invoked.
type EngineConfig struct {
	Binary           string            `yaml:"binary"`
	Args             []string          `yaml:"args"`
	OutputDirFlag    string            `yaml:"output_dir_flag"`
	SourceName       string            `yaml:"source_name"`
	Passes           int               `yaml:"passes"`
	DefaultTimeout   time.Duration     `yaml:"default_timeout"`
	MaxTimeout       time.Duration     `yaml:"max_timeout"`
	TerminationGrace time.Duration     `yaml:"termination_grace"`
	MaxOutputBytes   int               `yaml:"max_output_bytes"`
	TailChars        int               `yaml:"tail_chars"`
	Env              map[string]string `yaml:"env,omitempty"`
}

// WorkspaceConfig defines where per-request workspaces live.
type WorkspaceConfig struct {
	BaseDir       string        `yaml:"base_dir"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// JournalConfig configures the SQLite compile journal. An empty path disables it.
type JournalConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// EventsConfig sizes the in-memory event ring buffer.
type EventsConfig struct {
	Buffer int `yaml:"buffer"`
}

// Defaults returns a Config with the service defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "texgate",
			LogLevel:  "info",
			LogFormat: "json",
		},
		API: APIConfig{
			Listen:              "0.0.0.0:8080",
			DownloadName:        "document.pdf",
			CompilerErrorStatus: 400,
			MaxBodyBytes:        4 << 20,
			ReadTimeout:         30 * time.Second,
			WriteTimeout:        15 * time.Minute,
			ShutdownTimeout:     30 * time.Second,
		},
		Engine: EngineConfig{
			Binary:           "pdflatex",
			Args:             []string{"-interaction=nonstopmode"},
			OutputDirFlag:    "-output-directory",
			SourceName:       "document.tex",
			Passes:           2,
			DefaultTimeout:   30 * time.Second,
			MaxTimeout:       5 * time.Minute,
			TerminationGrace: 5 * time.Second,
			MaxOutputBytes:   64 * 1024,
			TailChars:        1000,
		},
		Workspace: WorkspaceConfig{
			StaleAfter:    time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Journal: JournalConfig{
			Retention: 30 * 24 * time.Hour,
		},
		Events: EventsConfig{
			Buffer: 256,
		},
	}
}
