package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/kpxc/internal/config"
	"github.com/mrz1836/kpxc/internal/keepassxc"
	"github.com/mrz1836/kpxc/internal/output"
)

const testPassphrase = "hunter2hunter2"

// vaultRunner answers keepassxc-cli invocations from an in-memory vault.
type vaultRunner struct {
	mu      sync.Mutex
	entries map[string]map[string]string
	calls   [][]string
	err     error
}

func newVaultRunner() *vaultRunner {
	return &vaultRunner{
		entries: map[string]map[string]string{
			"Email/work": {
				keepassxc.AttrUserName: "alice@example.com",
				keepassxc.AttrPassword: "s3cret",
				keepassxc.AttrURL:      "https://mail.example.com",
				keepassxc.AttrNotes:    "first\nsecond",
			},
			"Email/personal": {
				keepassxc.AttrUserName: "alice",
				keepassxc.AttrPassword: "p4ss",
			},
			"Banking/checking": {
				keepassxc.AttrUserName: "alice-bank",
				keepassxc.AttrPassword: "pin",
			},
		},
	}
}

func (r *vaultRunner) Run(_ context.Context, _ string, args []string, stdin []byte) (*keepassxc.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, slices.Clone(args))
	if r.err != nil {
		return nil, r.err
	}
	if len(args) == 0 {
		return &keepassxc.Result{Stderr: "Usage: keepassxc-cli command\n", ExitCode: 1}, nil
	}
	if string(stdin) != testPassphrase {
		return &keepassxc.Result{Stderr: "Invalid credentials were provided\n", ExitCode: 1}, nil
	}

	rest := args[1:]
	if len(rest) >= 2 && rest[0] == "-k" {
		rest = rest[2:]
	}

	switch args[0] {
	case "ls":
		return &keepassxc.Result{Stdout: "Email/\nBanking/\n"}, nil
	case "search":
		query := strings.ToLower(rest[len(rest)-1])
		names := make([]string, 0, len(r.entries))
		for name := range r.entries {
			if strings.Contains(strings.ToLower(name), query) {
				names = append(names, name)
			}
		}
		if len(names) == 0 {
			return &keepassxc.Result{Stderr: "No results for that search term.\n", ExitCode: 1}, nil
		}
		slices.Sort(names)
		return &keepassxc.Result{Stdout: "/" + strings.Join(names, "\n/") + "\n"}, nil
	case "show":
		attr, target := rest[2], rest[4]
		entry, ok := r.entries[strings.TrimPrefix(target, "/")]
		if !ok {
			return &keepassxc.Result{Stderr: "Could not find entry with path " + target + ".\n", ExitCode: 1}, nil
		}
		return &keepassxc.Result{Stdout: entry[attr] + "\n"}, nil
	}
	return &keepassxc.Result{Stderr: "Invalid command\n", ExitCode: 1}, nil
}

func (r *vaultRunner) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// cliFixture wires the package globals to a temp home and a vaultRunner.
type cliFixture struct {
	home   string
	dbPath string
	runner *vaultRunner
	cfg    *config.Config
}

// setupCLI installs globals for command tests and restores them on cleanup.
// Tests using it must not run in parallel.
func setupCLI(t *testing.T, format output.Format) *cliFixture {
	t.Helper()

	home := t.TempDir()
	dbPath := filepath.Join(home, "vault.kdbx")
	require.NoError(t, os.WriteFile(dbPath, []byte("kdbx"), 0o600))

	c := config.Defaults()
	c.Home = home
	c.Database.Path = dbPath
	c.Security.UnlockAttemptsPerMinute = 0

	f := &cliFixture{home: home, dbPath: dbPath, runner: newVaultRunner(), cfg: c}

	origCfg, origLogger, origFormatter, origCtx := cfg, logger, formatter, cmdCtx
	origRunner, origPrompt, origTTY := newRunner, promptPasswordFn, stdinIsTerminal
	t.Cleanup(func() {
		cfg, logger, formatter, cmdCtx = origCfg, origLogger, origFormatter, origCtx
		newRunner, promptPasswordFn, stdinIsTerminal = origRunner, origPrompt, origTTY
	})

	cfg = c
	logger = config.NullLogger()
	formatter = output.NewFormatter(format, &bytes.Buffer{})
	cmdCtx = NewCommandContext(cfg, logger, formatter, output.PlainStyles())
	newRunner = func() keepassxc.Runner { return f.runner }
	stdinIsTerminal = func() bool { return true }
	promptPasswordFn = func(string) ([]byte, error) { return []byte(testPassphrase), nil }

	return f
}

// newTestCmd returns a command with a background context, the given stdin
// and a buffer capturing stdout.
func newTestCmd(stdin string) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetIn(strings.NewReader(stdin))
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	return cmd, buf
}
