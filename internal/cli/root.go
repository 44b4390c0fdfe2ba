// Package cli implements the kpxc command-line interface.
//
// This package uses global variables to manage CLI state, which is the standard
// pattern for Cobra-based CLI applications. The globals are initialized in
// PersistentPreRunE and cleaned up in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/kpxc/internal/config"
	"github.com/mrz1836/kpxc/internal/fileutil"
	"github.com/mrz1836/kpxc/internal/output"
	kpxcerr "github.com/mrz1836/kpxc/pkg/errors"
)

// BuildInfo describes the binary, set by the linker through main.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

var (
	// Global flags
	homeDir      string
	outputFormat string
	verbose      bool
	dbFlags      databaseFlags

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter
	cmdCtx    *CommandContext

	buildInfo BuildInfo
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "kpxc",
	Short: "Search and read KeePassXC databases from the terminal",
	Long: `kpxc looks up entries in a KeePassXC database through keepassxc-cli.

One-shot commands ask for the passphrase every time. The shell keeps the
database unlocked in memory until the inactivity timeout elapses.

Example:
  kpxc check -d ~/vault.kdbx
  kpxc search github
  kpxc show "Email/work" --attr UserName
  kpxc shell`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initGlobals(cmd)
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// versionCmd prints build information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if formatter != nil && formatter.IsJSON() {
			return output.EncodeJSON(cmd.OutOrStdout(), buildInfo)
		}
		outln(cmd.OutOrStdout(), "kpxc "+formatVersion(buildInfo))
		return nil
	},
}

// SetBuildInfo records version details for the version command.
func SetBuildInfo(info BuildInfo) {
	buildInfo = info
	rootCmd.Version = formatVersion(info)
}

func formatVersion(info BuildInfo) string {
	version, commit, date := info.Version, info.Commit, info.Date
	if version == "" {
		version = "dev"
	}
	if commit == "" {
		commit = "unknown"
	}
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

// Execute runs the root command and prints any error it returns.
func Execute(ctx context.Context) error {
	prepareHelp(rootCmd)
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		formatErr(err)
	}
	return err
}

func formatErr(err error) {
	format := output.FormatText
	if formatter != nil {
		format = formatter.Format()
	}
	_ = output.FormatError(os.Stderr, err, format)
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return kpxcerr.ExitCode(err)
}

// initGlobals loads configuration with precedence flags > env > file > defaults
// and builds the logger, formatter and command context from it.
func initGlobals(cmd *cobra.Command) error {
	home := homeDir
	if home == "" {
		home = config.SanitizePath(os.Getenv(config.EnvHome))
	}
	if home == "" {
		home = config.DefaultHome()
	}
	if expanded, err := fileutil.ExpandHome(home); err == nil {
		home = expanded
	}

	var err error
	cfg, err = config.Load(config.Path(home))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = config.Defaults()
	case err != nil:
		return err
	}

	config.ApplyEnvironment(cfg)
	// The directory the config was read from wins over any home stored in it.
	cfg.Home = home
	if verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = "debug"
	}
	if outputFormat != "" && outputFormat != "auto" {
		cfg.Output.DefaultFormat = outputFormat
	}
	dbFlags.apply(cmd.Flags(), cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err = config.NewLogger(config.ParseLogLevel(cfg.Logging.Level), cfg.LogFile())
	if err != nil {
		// Fall back to discarding logs when the file cannot be opened.
		logger = config.NullLogger()
	}

	explicitFormat := output.ParseFormat(cfg.Output.DefaultFormat)
	formatter = output.NewFormatter(output.DetectFormat(os.Stdout, explicitFormat), os.Stdout)

	cmdCtx = NewCommandContext(cfg, logger, formatter, output.NewStyles(os.Stdout, cfg.Output.Color))
	return nil
}

// cleanup releases resources.
func cleanup() {
	if logger != nil {
		_ = logger.Close()
	}
}

// Config returns the global configuration.
func Config() *config.Config {
	return cfg
}

// Logger returns the global logger.
func Logger() *config.Logger {
	return logger
}

// Formatter returns the global output formatter.
func Formatter() *output.Formatter {
	return formatter
}

// Context returns the command context built for the current invocation.
func Context() *CommandContext {
	return cmdCtx
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "kpxc data directory (default: ~/.kpxc)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	dbFlags.bind(rootCmd.PersistentFlags())

	rootCmd.AddCommand(versionCmd)
	rootCmd.SetVersionTemplate("kpxc {{.Version}}\n")
	SetBuildInfo(BuildInfo{})
}
