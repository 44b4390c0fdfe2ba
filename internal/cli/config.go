package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mrz1836/kpxc/internal/config"
	"github.com/mrz1836/kpxc/internal/output"
	kpxcerr "github.com/mrz1836/kpxc/pkg/errors"
)

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and modify kpxc configuration settings.`,
}

// configInitCmd initializes the configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at ~/.kpxc/config.yaml.

Flags given alongside init (--database, --key-file, --timeout) are written
into the new file. An existing file is only replaced with --force.

Example:
  kpxc config init -d ~/vault.kdbx
  kpxc config init --force`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// configShowCmd shows the current configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the effective configuration, after environment and flag overrides.

Example:
  kpxc config show
  kpxc config show -o json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// configGetCmd gets a specific configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long: `Print one configuration value by its dotted key.

Examples:
  kpxc config get database.path
  kpxc config get database.inactivity_lock_seconds`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeConfigKey,
	RunE:              runConfigGet,
}

// configSetCmd sets a configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set one configuration value and save the file.

The value is validated before anything is written. A running shell picks
up the change.

Examples:
  kpxc config set database.path ~/vault.kdbx
  kpxc config set database.inactivity_lock_seconds 300
  kpxc config set logging.level debug`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeConfigKey,
	RunE:              runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	configPath := config.Path(cfg.Home)

	if _, err := os.Stat(configPath); err == nil && !configForce {
		return kpxcerr.WithSuggestion(
			kpxcerr.WithDetails(kpxcerr.ErrGeneral, map[string]string{"path": configPath}),
			"configuration already exists, use --force to overwrite",
		)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	initial := config.Defaults()
	initial.Home = cfg.Home
	dbFlags.apply(cmd.Flags(), initial)

	if err := config.Save(initial, configPath); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	w := cmd.OutOrStdout()
	output.Successf(w, "Configuration initialized at %s", configPath)
	if initial.Database.Path == "" {
		outln(w)
		outln(w, "Point kpxc at your database with:")
		outln(w, "  kpxc config set database.path ~/path/to/vault.kdbx")
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	if formatter.IsJSON() {
		return displayConfigJSON(w, cfg)
	}
	return displayConfigText(w, cfg, cmdCtx.Styles)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	value, err := cfg.Get(args[0])
	if err != nil {
		return withKeySuggestion(err, args[0])
	}
	outln(cmd.OutOrStdout(), value)
	return nil
}

// runConfigSet edits the file on disk rather than the effective config,
// so environment and flag overrides are never persisted.
func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	configPath := config.Path(cfg.Home)
	current, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		current = config.Defaults()
		current.Home = cfg.Home
	}

	if err := current.Set(key, value); err != nil {
		return withKeySuggestion(err, key)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := config.Save(current, configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	saved, _ := current.Get(key)
	output.Successf(cmd.OutOrStdout(), "Set %s = %s", key, saved)
	return nil
}

// withKeySuggestion adds the closest known key to an unknown-key error.
func withKeySuggestion(err error, key string) error {
	if !kpxcerr.Is(err, kpxcerr.ErrUnknownConfigKey) {
		return err
	}
	if match := closestWord(key, config.Keys(), suggestionDistance); match != "" {
		return kpxcerr.WithSuggestion(err, fmt.Sprintf("did you mean %q?", match))
	}
	return kpxcerr.WithSuggestion(err, "run 'kpxc config show' to list the keys")
}

func completeConfigKey(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return config.Keys(), cobra.ShellCompDirectiveNoFileComp
}

func displayConfigText(w io.Writer, c *config.Config, st *output.Styles) error {
	table := output.NewTable("KEY", "VALUE")
	for _, key := range config.Keys() {
		value, _ := c.Get(key)
		if value == "" {
			value = st.Muted.Render("(not set)")
		}
		table.AddRow(st.Label.Render(key), value)
	}
	return table.Render(w)
}

func displayConfigJSON(w io.Writer, c *config.Config) error {
	values := make(map[string]string, len(config.Keys()))
	for _, key := range config.Keys() {
		values[key], _ = c.Get(key)
	}
	return output.EncodeJSON(w, values)
}
