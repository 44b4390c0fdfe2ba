package cli

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/mrz1836/kpxc/internal/config"
	"github.com/mrz1836/kpxc/internal/keepassxc"
	"github.com/mrz1836/kpxc/internal/output"
)

// newRunner builds the process runner for every Database the CLI opens.
// Tests replace it with a scripted runner.
//
//nolint:gochecknoglobals // Swappable for tests
var newRunner = func() keepassxc.Runner { return keepassxc.NewExecRunner() }

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Log    *config.Logger
	Fmt    *output.Formatter
	Styles *output.Styles
}

// NewCommandContext creates a context with the given dependencies.
func NewCommandContext(
	c *config.Config,
	log *config.Logger,
	fmtr *output.Formatter,
	styles *output.Styles,
) *CommandContext {
	if styles == nil {
		styles = output.PlainStyles()
	}
	return &CommandContext{
		Cfg:    c,
		Log:    log,
		Fmt:    fmtr,
		Styles: styles,
	}
}

// DatabaseOptions returns the database settings from the config.
func (c *CommandContext) DatabaseOptions() keepassxc.Options {
	return keepassxc.Options{
		Path:              c.Cfg.Database.Path,
		KeyFile:           c.Cfg.Database.KeyFile,
		InactivityTimeout: c.Cfg.InactivityTimeout(),
	}
}

// NewDatabase builds an uninitialized Database wired to the config,
// logger and unlock limiter.
func (c *CommandContext) NewDatabase() *keepassxc.Database {
	opts := []keepassxc.Option{
		keepassxc.WithCLI(c.Cfg.CLI.Binary),
		keepassxc.WithRunner(newRunner()),
		keepassxc.WithLogger(c.Log.Named("keepassxc")),
	}
	if l := unlockLimiter(c.Cfg.Security); l != nil {
		opts = append(opts, keepassxc.WithUnlockLimiter(l))
	}
	return keepassxc.New(opts...)
}

// OpenDatabase builds a Database and initializes it from the config.
func (c *CommandContext) OpenDatabase(ctx context.Context) (*keepassxc.Database, error) {
	db := c.NewDatabase()
	if err := db.Initialize(ctx, c.DatabaseOptions()); err != nil {
		return nil, err
	}
	return db, nil
}

// unlockLimiter returns nil when throttling is disabled.
func unlockLimiter(sec config.SecurityConfig) *rate.Limiter {
	if sec.UnlockAttemptsPerMinute <= 0 {
		return nil
	}
	every := time.Minute / time.Duration(sec.UnlockAttemptsPerMinute)
	return rate.NewLimiter(rate.Every(every), max(sec.UnlockBurst, 1))
}
