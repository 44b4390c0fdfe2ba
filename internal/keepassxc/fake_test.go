package keepassxc

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mrz1836/kpxc/internal/metrics"
)

const (
	testPassphrase = "correct horse battery staple"
	testCLI        = "keepassxc-cli"
)

//nolint:gochecknoglobals // Fixed reference time for deterministic expiry tests
var t0 = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

// invocation is one call seen by fakeRunner.
type invocation struct {
	name  string
	args  []string
	stdin string
}

// fakeRunner records invocations and answers them like keepassxc-cli would
// for a small in-memory vault.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []invocation
	entries map[string]map[string]string
	// err, when set, is returned for every call instead of a result.
	err error
	// override, when set, answers a call before the built-in behavior.
	override func(args []string) *Result
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		entries: map[string]map[string]string{
			"Email/work": {
				AttrUserName: "alice@example.com",
				AttrPassword: "s3cret",
				AttrURL:      "https://mail.example.com",
				AttrNotes:    "line one\nline two",
			},
			"Banking/checking": {
				AttrUserName: "alice",
				AttrPassword: "pin1234",
			},
		},
	}
}

func (f *fakeRunner) Run(_ context.Context, name string, args []string, stdin []byte) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, invocation{name: name, args: slices.Clone(args), stdin: string(stdin)})
	if f.err != nil {
		return nil, f.err
	}
	if f.override != nil {
		if res := f.override(args); res != nil {
			return res, nil
		}
	}
	if len(args) == 0 {
		return &Result{Stderr: "Usage: keepassxc-cli [options] command\n", ExitCode: 1}, nil
	}
	if string(stdin) != testPassphrase {
		return &Result{Stderr: "Error while reading the database: Invalid credentials were provided\n", ExitCode: 1}, nil
	}

	// Drop the spliced key file so positions below are stable.
	rest := args[1:]
	if len(rest) >= 2 && rest[0] == "-k" {
		rest = rest[2:]
	}

	switch args[0] {
	case cmdList:
		return &Result{Stdout: "Email/\nBanking/\n"}, nil
	case cmdSearch:
		query := rest[len(rest)-1]
		var out strings.Builder
		for _, name := range f.sortedNames() {
			if strings.Contains(strings.ToLower(name), strings.ToLower(query)) {
				out.WriteString("/" + name + "\n")
			}
		}
		if out.Len() == 0 {
			return &Result{Stderr: "No results for that search term.\n", ExitCode: 1}, nil
		}
		return &Result{Stdout: out.String()}, nil
	case cmdShow:
		// show -q -a <attr> <db> /<name>
		attr := rest[2]
		name := strings.TrimPrefix(rest[4], "/")
		entry, ok := f.entries[name]
		if !ok {
			return &Result{Stderr: "Could not find entry with path " + rest[4] + ".\n", ExitCode: 1}, nil
		}
		return &Result{Stdout: entry[attr] + "\n"}, nil
	}
	return &Result{Stderr: "Invalid command " + args[0] + ".\n", ExitCode: 1}, nil
}

func (f *fakeRunner) sortedNames() []string {
	names := make([]string, 0, len(f.entries))
	for name := range f.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (f *fakeRunner) Calls() []invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeRunner) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fixture bundles a Database wired to fakes and a real database file on disk.
type fixture struct {
	db      *Database
	runner  *fakeRunner
	clock   *fakeClock
	metrics *metrics.Metrics
	dir     string
	dbPath  string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "vault.kdbx")
	require.NoError(t, os.WriteFile(dbPath, []byte("kdbx"), 0o600))

	f := &fixture{
		runner:  newFakeRunner(),
		clock:   &fakeClock{now: t0},
		metrics: &metrics.Metrics{},
		dir:     dir,
		dbPath:  dbPath,
	}
	base := []Option{
		WithCLI(testCLI),
		WithRunner(f.runner),
		WithClock(f.clock.Now),
		WithMetrics(f.metrics),
	}
	f.db = New(append(base, opts...)...)
	return f
}

// initialize opens the fixture database with the given timeout.
func (f *fixture) initialize(t *testing.T, timeout time.Duration) {
	t.Helper()
	require.NoError(t, f.db.Initialize(context.Background(), Options{
		Path:              f.dbPath,
		InactivityTimeout: timeout,
	}))
}

// unlock initializes and unlocks, then forgets the calls made so far.
func (f *fixture) unlock(t *testing.T, timeout time.Duration) {
	t.Helper()
	f.initialize(t, timeout)
	ok, err := f.db.Unlock(context.Background(), testPassphrase)
	require.NoError(t, err)
	require.True(t, ok)
	f.runner.Reset()
}

// writeFile creates a file under the fixture directory.
func (f *fixture) writeFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte("key"), 0o600))
	return path
}
