package config

import "time"

// Config represents the complete devdeck configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Scan      ScanConfig      `yaml:"scan"`
	API       APIConfig       `yaml:"api"`
	Logs      LogsConfig      `yaml:"logs"`
	State     StateConfig     `yaml:"state"`
	Toolchain ToolchainConfig `yaml:"toolchain"`

	// SourcePath is the file the config was loaded from; empty for defaults.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// ScanConfig defines where projects are discovered.
type ScanConfig struct {
	Root     string        `yaml:"root"`
	Exclude  []string      `yaml:"exclude"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Listen      string        `yaml:"listen"`
	CORSOrigins []string      `yaml:"cors_origins"`
	Auth        APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
// With no api_key and no tokens the API is open.
type APIAuthConfig struct {
	// APIKey is a single bearer token with full access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// Enabled reports whether any credential is configured.
func (a APIAuthConfig) Enabled() bool {
	return a.APIKey != "" || len(a.Tokens) > 0
}

// LogsConfig defines per-project output capture.
type LogsConfig struct {
	Capacity     int           `yaml:"capacity"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// StateConfig defines run-history storage.
type StateConfig struct {
	Path    string `yaml:"path"`
	History bool   `yaml:"history"`
}

// ToolchainConfig names the executables used to launch projects.
type ToolchainConfig struct {
	NPM     string `yaml:"npm"`
	Python  string `yaml:"python"`
	Uvicorn string `yaml:"uvicorn"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "devdeck",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Scan: ScanConfig{
			Root:     ".",
			Exclude:  []string{},
			Debounce: 500 * time.Millisecond,
		},
		API: APIConfig{
			Listen:      "127.0.0.1:8765",
			CORSOrigins: []string{"*"},
		},
		Logs: LogsConfig{
			Capacity:     1000,
			PollInterval: 100 * time.Millisecond,
		},
		State: StateConfig{
			Path:    "./data/devdeck.db",
			History: true,
		},
		Toolchain: ToolchainConfig{
			NPM:     "npm",
			Python:  "python",
			Uvicorn: "uvicorn",
		},
	}
}
