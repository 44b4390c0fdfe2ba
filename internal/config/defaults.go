package config

// Default values.
const (
	DefaultInactivityLockSeconds   = 600
	DefaultCLIBinary               = "keepassxc-cli"
	DefaultMaxResults              = 50
	DefaultUnlockAttemptsPerMinute = 5
	DefaultUnlockBurst             = 3
)

//nolint:gochecknoglobals // Allowed value sets for validation
var (
	outputFormats = []string{"auto", "text", "json"}
	colorModes    = []string{"auto", "always", "never"}
	logLevels     = []string{"off", "none", "error", "debug"}
)

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.kpxc",
		Database: DatabaseConfig{
			InactivityLockSeconds: DefaultInactivityLockSeconds,
		},
		CLI: CLIConfig{
			Binary: DefaultCLIBinary,
		},
		Search: SearchConfig{
			MaxResults: DefaultMaxResults,
		},
		Security: SecurityConfig{
			UnlockAttemptsPerMinute: DefaultUnlockAttemptsPerMinute,
			UnlockBurst:             DefaultUnlockBurst,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level: "error",
		},
	}
}
