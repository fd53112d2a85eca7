// ABOUTME: Configuration loading and parsing for the hivewatch server
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete hivewatch configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	State    StateConfig    `yaml:"state"`
}

// ServerConfig holds listener configuration.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig holds the event store location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StateConfig holds reducer and buffer timing knobs. Durations are written as
// strings ("300ms", "1s") and parsed on load; zero values fall back to the
// reducer's defaults.
type StateConfig struct {
	BufferDelay          time.Duration `yaml:"-"`
	SpawnActivateDelay   time.Duration `yaml:"-"`
	CompletedRemoveDelay time.Duration `yaml:"-"`
	ErrorRevertDelay     time.Duration `yaml:"-"`
	ThinkingAfter        time.Duration `yaml:"-"`
	StaleAfter           time.Duration `yaml:"-"`
	RootStaleAfter       time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	BufferDelayRaw          string `yaml:"buffer_delay"`
	SpawnActivateDelayRaw   string `yaml:"spawn_activate_delay"`
	CompletedRemoveDelayRaw string `yaml:"completed_remove_delay"`
	ErrorRevertDelayRaw     string `yaml:"error_revert_delay"`
	ThinkingAfterRaw        string `yaml:"thinking_after"`
	StaleAfterRaw           string `yaml:"stale_after"`
	RootStaleAfterRaw       string `yaml:"root_stale_after"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: "127.0.0.1:4567"},
		Database: DatabaseConfig{Path: "hivewatch.db"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that required configuration fields are present.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"buffer_delay", cfg.State.BufferDelayRaw, &cfg.State.BufferDelay},
		{"spawn_activate_delay", cfg.State.SpawnActivateDelayRaw, &cfg.State.SpawnActivateDelay},
		{"completed_remove_delay", cfg.State.CompletedRemoveDelayRaw, &cfg.State.CompletedRemoveDelay},
		{"error_revert_delay", cfg.State.ErrorRevertDelayRaw, &cfg.State.ErrorRevertDelay},
		{"thinking_after", cfg.State.ThinkingAfterRaw, &cfg.State.ThinkingAfter},
		{"stale_after", cfg.State.StaleAfterRaw, &cfg.State.StaleAfter},
		{"root_stale_after", cfg.State.RootStaleAfterRaw, &cfg.State.RootStaleAfter},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
