package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Environment overrides applied after the file is read.
const (
	EnvConfigDir   = "DEVDECK_CONFIG_DIR"
	EnvProjectPath = "PROJECT_PATH"
	EnvExcludeApps = "EXCLUDE_APPS"
)

// ErrNoConfig is returned by Discover when no config file exists.
var ErrNoConfig = errors.New("no config found")

// Load reads and parses configuration from a file or a directory holding
// config.yaml, then applies defaults, environment overrides and validation.
func Load(configPath string) (*Config, error) {
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
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", absPath, err)
	}
	cfg.SourcePath = absPath
	cfg.State.History = historyEnabled(data, cfg.State.History)

	return finish(cfg, filepath.Dir(absPath))
}

// Resolve loads configPath, or the discovered config when configPath is
// empty, or the defaults when nothing is found.
func Resolve(configPath string) (*Config, error) {
	if configPath == "" {
		found, err := Discover()
		switch {
		case errors.Is(err, ErrNoConfig):
			return finish(Defaults(), "")
		case err != nil:
			return nil, err
		}
		configPath = found
	}
	return Load(configPath)
}

// Discover finds the config file by checking standard locations.
// Priority order: $DEVDECK_CONFIG_DIR, ~/.config/devdeck, /etc/devdeck, ./config.yaml
func Discover() (string, error) {
	var candidates []string
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		candidates = append(candidates, filepath.Join(dir, "config.yaml"))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "devdeck", "config.yaml"))
	}
	candidates = append(candidates, "/etc/devdeck/config.yaml", "./config.yaml")

	for _, path := range candidates {
		if fileExists(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w (checked: $%s, ~/.config/devdeck, /etc/devdeck, ./config.yaml)", ErrNoConfig, EnvConfigDir)
}

func finish(cfg *Config, baseDir string) (*Config, error) {
	cfg = applyConfigDefaults(cfg)
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	resolvePaths(cfg, baseDir)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// historyEnabled defaults state.history to true when the file omits it.
func historyEnabled(data []byte, parsed bool) bool {
	var probe struct {
		State struct {
			History *bool `yaml:"history"`
		} `yaml:"state"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil || probe.State.History == nil {
		return true
	}
	return parsed
}

func applyConfigDefaults(cfg *Config) *Config {
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
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	cfg.Service.LogFormat = strings.ToLower(cfg.Service.LogFormat)

	if cfg.Scan.Root == "" {
		cfg.Scan.Root = defaults.Scan.Root
	}
	if cfg.Scan.Exclude == nil {
		cfg.Scan.Exclude = defaults.Scan.Exclude
	}
	if cfg.Scan.Debounce == 0 {
		cfg.Scan.Debounce = defaults.Scan.Debounce
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	if cfg.API.CORSOrigins == nil {
		cfg.API.CORSOrigins = defaults.API.CORSOrigins
	}

	if cfg.Logs.Capacity == 0 {
		cfg.Logs.Capacity = defaults.Logs.Capacity
	}
	if cfg.Logs.PollInterval == 0 {
		cfg.Logs.PollInterval = defaults.Logs.PollInterval
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}

	if cfg.Toolchain.NPM == "" {
		cfg.Toolchain.NPM = defaults.Toolchain.NPM
	}
	if cfg.Toolchain.Python == "" {
		cfg.Toolchain.Python = defaults.Toolchain.Python
	}
	if cfg.Toolchain.Uvicorn == "" {
		cfg.Toolchain.Uvicorn = defaults.Toolchain.Uvicorn
	}

	return cfg
}

// applyEnvOverrides applies PROJECT_PATH and EXCLUDE_APPS (a JSON array).
func applyEnvOverrides(cfg *Config) error {
	if root, ok := os.LookupEnv(EnvProjectPath); ok && root != "" {
		cfg.Scan.Root = root
	}
	if raw, ok := os.LookupEnv(EnvExcludeApps); ok && strings.TrimSpace(raw) != "" {
		var exclude []string
		if err := json.Unmarshal([]byte(raw), &exclude); err != nil {
			return fmt.Errorf("%s must be a JSON array of directory names: %w", EnvExcludeApps, err)
		}
		cfg.Scan.Exclude = exclude
	}
	return nil
}

// resolvePaths makes relative scan and state paths relative to the config
// file's directory. Defaults stay relative to the working directory.
func resolvePaths(cfg *Config, baseDir string) {
	if baseDir == "" {
		return
	}
	if !filepath.IsAbs(cfg.Scan.Root) && os.Getenv(EnvProjectPath) == "" {
		cfg.Scan.Root = filepath.Join(baseDir, cfg.Scan.Root)
	}
	if !filepath.IsAbs(cfg.State.Path) {
		cfg.State.Path = filepath.Join(baseDir, cfg.State.Path)
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// If not found, leave the placeholder (will fail validation if required)
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

	if cfg.Scan.Root == "" {
		return fmt.Errorf("scan.root is required")
	}
	if cfg.Scan.Debounce < 0 {
		return fmt.Errorf("scan.debounce must not be negative")
	}
	for i, name := range cfg.Scan.Exclude {
		if name == "" || strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("scan.exclude[%d] must be a plain directory name (got %q)", i, name)
		}
	}

	if cfg.API.Listen == "" {
		return fmt.Errorf("api.listen is required")
	}

	if cfg.Logs.Capacity <= 0 {
		return fmt.Errorf("logs.capacity must be positive")
	}
	if cfg.Logs.PollInterval <= 0 {
		return fmt.Errorf("logs.poll_interval must be positive")
	}

	if cfg.State.History && cfg.State.Path == "" {
		return fmt.Errorf("state.path is required when state.history is enabled")
	}

	if envVarPattern.MatchString(cfg.API.Auth.APIKey) {
		matches := envVarPattern.FindStringSubmatch(cfg.API.Auth.APIKey)
		return fmt.Errorf("api.auth.api_key: environment variable ${%s} is not set", matches[1])
	}
	for i, tok := range cfg.API.Auth.Tokens {
		if tok.Token == "" {
			return fmt.Errorf("api.auth.tokens[%d].token is required", i)
		}
		if envVarPattern.MatchString(tok.Token) {
			matches := envVarPattern.FindStringSubmatch(tok.Token)
			return fmt.Errorf("api.auth.tokens[%d].token: environment variable ${%s} is not set", i, matches[1])
		}
		if len(tok.Scopes) == 0 {
			return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
		}
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
