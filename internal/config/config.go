// Package config provides configuration management for kpxc.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/kpxc/internal/fileutil"
	kpxcerr "github.com/mrz1836/kpxc/pkg/errors"
)

// Config represents the application configuration.
type Config struct {
	Version  int            `yaml:"version"`
	Home     string         `yaml:"home"`
	Database DatabaseConfig `yaml:"database"`
	CLI      CLIConfig      `yaml:"cli"`
	Search   SearchConfig   `yaml:"search"`
	Security SecurityConfig `yaml:"security"`
	Output   OutputConfig   `yaml:"output"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig selects the database and how long it stays unlocked.
type DatabaseConfig struct {
	Path    string `yaml:"path"`
	KeyFile string `yaml:"key_file"`
	// InactivityLockSeconds of zero keeps the database unlocked until
	// the process exits or the user locks it.
	InactivityLockSeconds int `yaml:"inactivity_lock_seconds"`
}

// CLIConfig locates keepassxc-cli.
type CLIConfig struct {
	Binary string `yaml:"binary"`
}

// SearchConfig limits how search results are displayed.
type SearchConfig struct {
	MaxResults int `yaml:"max_results"`
}

// SecurityConfig throttles unlock attempts.
type SecurityConfig struct {
	UnlockAttemptsPerMinute int `yaml:"unlock_attempts_per_minute"`
	UnlockBurst             int `yaml:"unlock_burst"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// File defaults to kpxc.log inside Home.
	File string `yaml:"file"`
}

// Load reads configuration from the specified file on top of Defaults.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, kpxcerr.WithDetails(
			kpxcerr.Wrap(kpxcerr.ErrConfigInvalid, "parsing %s", path),
			map[string]string{"reason": err.Error()},
		)
	}

	return cfg, nil
}

// Save writes configuration to the specified file atomically.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	return fileutil.WriteAtomic(path, data, 0o600)
}

// Path returns the config file path inside home.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// DefaultHome returns the default kpxc home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kpxc"
	}
	return filepath.Join(home, ".kpxc")
}

// InactivityTimeout returns the configured inactivity lock as a duration.
func (c *Config) InactivityTimeout() time.Duration {
	return time.Duration(c.Database.InactivityLockSeconds) * time.Second
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// LogFile returns the log file path, defaulting to kpxc.log in Home.
func (c *Config) LogFile() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return filepath.Join(c.Home, "kpxc.log")
}

// IsVerbose reports whether verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	invalid := func(key, value string) error {
		return kpxcerr.WithDetails(kpxcerr.ErrConfigInvalid, map[string]string{"key": key, "value": value})
	}

	if c.Database.InactivityLockSeconds < 0 {
		return invalid("database.inactivity_lock_seconds", fmt.Sprint(c.Database.InactivityLockSeconds))
	}
	if c.Search.MaxResults <= 0 {
		return invalid("search.max_results", fmt.Sprint(c.Search.MaxResults))
	}
	if c.Security.UnlockAttemptsPerMinute < 0 {
		return invalid("security.unlock_attempts_per_minute", fmt.Sprint(c.Security.UnlockAttemptsPerMinute))
	}
	if c.Security.UnlockAttemptsPerMinute > 0 && c.Security.UnlockBurst <= 0 {
		return invalid("security.unlock_burst", fmt.Sprint(c.Security.UnlockBurst))
	}
	if !isOneOf(c.Output.DefaultFormat, outputFormats) {
		return invalid("output.default_format", c.Output.DefaultFormat)
	}
	if !isOneOf(c.Output.Color, colorModes) {
		return invalid("output.color", c.Output.Color)
	}
	if !isOneOf(c.Logging.Level, logLevels) {
		return invalid("logging.level", c.Logging.Level)
	}
	return nil
}

func isOneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
