package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/mrz1836/go-sanitize"
)

// Environment variable names.
const (
	EnvHome              = "KPXC_HOME"
	EnvDatabase          = "KPXC_DATABASE"
	EnvKeyFile           = "KPXC_KEY_FILE"
	EnvInactivityTimeout = "KPXC_INACTIVITY_TIMEOUT"
	EnvCLI               = "KPXC_CLI"
	EnvOutputFormat      = "KPXC_OUTPUT_FORMAT"
	EnvVerbose           = "KPXC_VERBOSE"
	EnvLogLevel          = "KPXC_LOG_LEVEL"
	EnvNoColor           = "NO_COLOR"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = SanitizePath(v)
	}

	if v := os.Getenv(EnvDatabase); v != "" {
		cfg.Database.Path = SanitizePath(v)
	}

	if v := os.Getenv(EnvKeyFile); v != "" {
		cfg.Database.KeyFile = SanitizePath(v)
	}

	// KPXC_INACTIVITY_TIMEOUT is in seconds; 0 disables the lock
	if v := os.Getenv(EnvInactivityTimeout); v != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
			cfg.Database.InactivityLockSeconds = secs
		}
	}

	if v := os.Getenv(EnvCLI); v != "" {
		cfg.CLI.Binary = SanitizePath(v)
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	// NO_COLOR disables colored output
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizePath removes line breaks and tabs that sneak into pasted paths.
func SanitizePath(path string) string {
	return strings.TrimSpace(sanitize.SingleLine(path))
}
