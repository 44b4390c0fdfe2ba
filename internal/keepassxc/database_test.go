package keepassxc

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	kpxcerr "github.com/mrz1836/kpxc/pkg/errors"
)

func TestNew_StartsLocked(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	assert.True(t, f.db.IsLocked())
	assert.Empty(t, f.runner.Calls())
}

func TestInitialize_ProbesToolOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.initialize(t, time.Minute)
	f.initialize(t, time.Minute)

	calls := f.runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, testCLI, calls[0].name)
	assert.Empty(t, calls[0].args)
}

func TestInitialize_ToolNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.runner.err = kpxcerr.WithDetails(kpxcerr.ErrToolNotFound, map[string]string{"cli": testCLI})

	err := f.db.Initialize(context.Background(), Options{Path: f.dbPath})
	require.ErrorIs(t, err, kpxcerr.ErrToolNotFound)
	assert.NotErrorIs(t, err, kpxcerr.ErrToolExecution)
	assert.Equal(t, kpxcerr.ExitTool, kpxcerr.ExitCode(err))
}

func TestInitialize_DatabaseNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	missing := filepath.Join(f.dir, "missing.kdbx")

	err := f.db.Initialize(context.Background(), Options{Path: missing})
	require.ErrorIs(t, err, kpxcerr.ErrDatabaseNotFound)
	assert.Equal(t, missing, kpxcerr.Detail(err, "path"))
}

func TestInitialize_EmptyPath(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.db.Initialize(context.Background(), Options{})
	require.ErrorIs(t, err, kpxcerr.ErrNotInitialized)
}

func TestInitialize_NegativeTimeout(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.db.Initialize(context.Background(), Options{Path: f.dbPath, InactivityTimeout: -time.Second})
	require.ErrorIs(t, err, kpxcerr.ErrInvalidInput)
	assert.Empty(t, f.runner.Calls())
}

func TestInitialize_KeyFile(t *testing.T) {
	t.Parallel()

	t.Run("missing key file is its own error", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		err := f.db.Initialize(context.Background(), Options{
			Path:    f.dbPath,
			KeyFile: filepath.Join(f.dir, "nope.key"),
		})
		require.ErrorIs(t, err, kpxcerr.ErrKeyFileNotFound)
		assert.NotErrorIs(t, err, kpxcerr.ErrDatabaseNotFound)
		assert.Equal(t, filepath.Join(f.dir, "nope.key"), kpxcerr.Detail(err, "key_file"))
	})

	t.Run("key file is stored absolute", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		keyPath := f.writeFile(t, "vault.key")

		require.NoError(t, f.db.Initialize(context.Background(), Options{Path: f.dbPath, KeyFile: keyPath}))
		assert.Equal(t, keyPath, f.db.Status().KeyFile)
	})

	t.Run("empty key file clears the stored one", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		keyPath := f.writeFile(t, "vault.key")

		require.NoError(t, f.db.Initialize(context.Background(), Options{Path: f.dbPath, KeyFile: keyPath}))
		require.NoError(t, f.db.Initialize(context.Background(), Options{Path: f.dbPath}))
		assert.Empty(t, f.db.Status().KeyFile)
	})
}

func TestInitialize_KeyFileKeptWhenDatabaseMissing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	keyPath := f.writeFile(t, "vault.key")

	err := f.db.Initialize(context.Background(), Options{
		Path:    filepath.Join(f.dir, "typo.kdbx"),
		KeyFile: keyPath,
	})
	require.ErrorIs(t, err, kpxcerr.ErrDatabaseNotFound)
	assert.Equal(t, keyPath, f.db.Status().KeyFile)

	f.db.ChangePath(f.dbPath)
	f.runner.Reset()
	ok, err := f.db.Unlock(context.Background(), testPassphrase)
	require.NoError(t, err)
	require.True(t, ok)

	calls := f.runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"ls", "-k", keyPath, "-q", f.dbPath}, calls[0].args)
}

func TestInitialize_NewKeyFileLocks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.unlock(t, time.Minute)
	keyPath := f.writeFile(t, "vault.key")

	require.NoError(t, f.db.Initialize(context.Background(), Options{
		Path:              f.dbPath,
		KeyFile:           keyPath,
		InactivityTimeout: time.Minute,
	}))
	assert.True(t, f.db.IsLocked())

	ok, err := f.db.Unlock(context.Background(), testPassphrase)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, f.db.Initialize(context.Background(), Options{
		Path:              f.dbPath,
		KeyFile:           keyPath,
		InactivityTimeout: time.Minute,
	}))
	assert.False(t, f.db.IsLocked(), "same key file keeps the session")
}

func TestInitialize_SamePathKeepsSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.unlock(t, time.Minute)

	f.initialize(t, time.Minute)
	assert.False(t, f.db.IsLocked())
}

func TestInitialize_NewPathLocks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.unlock(t, time.Minute)
	other := f.writeFile(t, "other.kdbx")

	require.NoError(t, f.db.Initialize(context.Background(), Options{Path: other, InactivityTimeout: time.Minute}))
	assert.True(t, f.db.IsLocked())
	assert.Equal(t, other, f.db.Path())
}

func TestInitialize_NewTimeoutLocks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.unlock(t, time.Minute)

	f.initialize(t, 2*time.Minute)
	assert.True(t, f.db.IsLocked())
	assert.Equal(t, 2*time.Minute, f.db.Status().InactivityTimeout)
}

func TestUnlock(t *testing.T) {
	t.Parallel()

	t.Run("correct passphrase", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.initialize(t, time.Minute)
		f.runner.Reset()

		ok, err := f.db.Unlock(context.Background(), testPassphrase)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.False(t, f.db.IsLocked())

		calls := f.runner.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, []string{"ls", "-q", f.dbPath}, calls[0].args)
		assert.Equal(t, testPassphrase, calls[0].stdin)
	})

	t.Run("wrong passphrase is not an error", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.initialize(t, time.Minute)

		ok, err := f.db.Unlock(context.Background(), "wrong")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.True(t, f.db.IsLocked())
	})

	t.Run("wrong passphrase discards previous session", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.unlock(t, time.Minute)

		ok, err := f.db.Unlock(context.Background(), "wrong")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.True(t, f.db.IsLocked())
	})

	t.Run("before initialize", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.db.Unlock(context.Background(), testPassphrase)
		require.ErrorIs(t, err, kpxcerr.ErrNotInitialized)
	})

	t.Run("tool failure surfaces", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.initialize(t, time.Minute)
		f.runner.err = kpxcerr.ErrToolNotFound

		ok, err := f.db.Unlock(context.Background(), testPassphrase)
		require.ErrorIs(t, err, kpxcerr.ErrToolNotFound)
		assert.False(t, ok)
	})

	t.Run("records metrics", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.initialize(t, time.Minute)

		_, _ = f.db.Unlock(context.Background(), "wrong")
		_, _ = f.db.Unlock(context.Background(), testPassphrase)

		snap := f.metrics.Snapshot()
		assert.Equal(t, int64(2), snap.UnlockAttempts)
		assert.Equal(t, int64(1), snap.UnlockFailures)
		assert.Equal(t, int64(2), snap.CLICallsTotal)
	})
}

func TestUnlock_KeyFileSplicedAfterSubcommand(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	keyPath := f.writeFile(t, "vault.key")
	require.NoError(t, f.db.Initialize(context.Background(), Options{Path: f.dbPath, KeyFile: keyPath}))
	f.runner.Reset()

	ok, err := f.db.Unlock(context.Background(), testPassphrase)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.db.Search(context.Background(), "mail")
	require.NoError(t, err)
	_, err = f.db.Entry(context.Background(), "Email/work")
	require.NoError(t, err)

	calls := f.runner.Calls()
	require.Len(t, calls, 6)
	assert.Equal(t, []string{"ls", "-k", keyPath, "-q", f.dbPath}, calls[0].args)
	assert.Equal(t, []string{"search", "-k", keyPath, "-q", f.dbPath, "mail"}, calls[1].args)
	assert.Equal(t, []string{"show", "-k", keyPath, "-q", "-a", "UserName", f.dbPath, "/Email/work"}, calls[2].args)
}

// lineLogger collects formatted log lines.
type lineLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineLogger) Debug(format string, args ...any) { l.add(format, args...) }
func (l *lineLogger) Error(format string, args ...any) { l.add(format, args...) }

func (l *lineLogger) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *lineLogger) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}

func TestRun_LogsHideQueryAndEntry(t *testing.T) {
	t.Parallel()
	log := &lineLogger{}
	f := newFixture(t, WithLogger(log))
	f.unlock(t, time.Minute)

	_, err := f.db.Search(context.Background(), "bank-secret-query")
	require.NoError(t, err)
	_, err = f.db.Entry(context.Background(), "Email/work")
	require.NoError(t, err)

	logged := log.String()
	assert.Contains(t, logged, "search -q "+f.dbPath+" <redacted>")
	assert.Contains(t, logged, "show -q -a Password "+f.dbPath+" <redacted>")
	assert.NotContains(t, logged, "bank-secret-query")
	assert.NotContains(t, logged, "Email/work")
	assert.NotContains(t, logged, testPassphrase)
	assert.NotContains(t, logged, "s3cret")
}

func TestUnlock_RevalidatesPathAfterChange(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.unlock(t, time.Minute)

	f.db.ChangePath(filepath.Join(f.dir, "gone.kdbx"))
	_, err := f.db.Unlock(context.Background(), testPassphrase)
	require.ErrorIs(t, err, kpxcerr.ErrDatabaseNotFound)
	assert.Empty(t, f.runner.Calls())
}

func TestUnlock_Limiter(t *testing.T) {
	t.Parallel()

	t.Run("cancelled wait", func(t *testing.T) {
		t.Parallel()
		limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
		f := newFixture(t, WithUnlockLimiter(limiter))
		f.initialize(t, time.Minute)

		_, err := f.db.Unlock(context.Background(), "wrong")
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ok, err := f.db.Unlock(ctx, testPassphrase)
		require.Error(t, err)
		assert.False(t, ok)
		assert.True(t, f.db.IsLocked())
	})

	t.Run("within burst", func(t *testing.T) {
		t.Parallel()
		limiter := rate.NewLimiter(rate.Every(time.Hour), 3)
		f := newFixture(t, WithUnlockLimiter(limiter))
		f.initialize(t, time.Minute)

		for range 3 {
			ok, err := f.db.Unlock(context.Background(), testPassphrase)
			require.NoError(t, err)
			assert.True(t, ok)
		}
	})
}

func TestSearch(t *testing.T) {
	t.Parallel()

	t.Run("locked", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.initialize(t, time.Minute)
		f.runner.Reset()

		_, err := f.db.Search(context.Background(), "mail")
		require.ErrorIs(t, err, kpxcerr.ErrLocked)
		assert.Empty(t, f.runner.Calls())
	})

	t.Run("strips leading separator", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.unlock(t, time.Minute)

		names, err := f.db.Search(context.Background(), "a")
		require.NoError(t, err)
		assert.Equal(t, []string{"Banking/checking", "Email/work"}, names)

		calls := f.runner.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, []string{"search", "-q", f.dbPath, "a"}, calls[0].args)
		assert.Equal(t, testPassphrase, calls[0].stdin)
	})

	t.Run("no results", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.unlock(t, time.Minute)

		names, err := f.db.Search(context.Background(), "zzz")
		require.NoError(t, err)
		assert.NotNil(t, names)
		assert.Empty(t, names)
	})

	t.Run("tool failure", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.unlock(t, time.Minute)
		f.runner.override = func([]string) *Result {
			return &Result{Stderr: "Error while reading the database: file corrupted\n", ExitCode: 2}
		}

		_, err := f.db.Search(context.Background(), "mail")
		require.ErrorIs(t, err, kpxcerr.ErrToolExecution)
		assert.Equal(t, "Error while reading the database: file corrupted", ToolOutput(err))
		assert.Equal(t, "2", kpxcerr.Detail(err, "exit_code"))
	})

	t.Run("skips blank lines", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.unlock(t, time.Minute)
		f.runner.override = func([]string) *Result {
			return &Result{Stdout: "/one\n\n/two\n"}
		}

		names, err := f.db.Search(context.Background(), "x")
		require.NoError(t, err)
		assert.Equal(t, []string{"one", "two"}, names)
	})
}

func TestEntry(t *testing.T) {
	t.Parallel()

	t.Run("locked", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.initialize(t, time.Minute)

		_, err := f.db.Entry(context.Background(), "Email/work")
		require.ErrorIs(t, err, kpxcerr.ErrLocked)
	})

	t.Run("reads every attribute in order", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.unlock(t, time.Minute)

		entry, err := f.db.Entry(context.Background(), "Email/work")
		require.NoError(t, err)
		assert.Equal(t, &Entry{
			Name:     "Email/work",
			UserName: "alice@example.com",
			Password: "s3cret",
			URL:      "https://mail.example.com",
			Notes:    "line one\nline two",
		}, entry)

		calls := f.runner.Calls()
		require.Len(t, calls, 4)
		for i, attr := range EntryAttributes() {
			assert.Equal(t, []string{"show", "-q", "-a", attr, f.dbPath, "/Email/work"}, calls[i].args)
		}
	})

	t.Run("absent attributes are empty", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.unlock(t, time.Minute)

		entry, err := f.db.Entry(context.Background(), "Banking/checking")
		require.NoError(t, err)
		assert.Empty(t, entry.URL)
		assert.Empty(t, entry.Notes)
	})

	t.Run("missing entry aborts", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.unlock(t, time.Minute)

		entry, err := f.db.Entry(context.Background(), "Nope")
		require.ErrorIs(t, err, kpxcerr.ErrToolExecution)
		assert.Nil(t, entry)
		assert.Contains(t, ToolOutput(err), "Could not find entry")
		assert.Len(t, f.runner.Calls(), 1)
	})

	t.Run("failure mid-read returns nothing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.unlock(t, time.Minute)
		f.runner.override = func(args []string) *Result {
			if args[3] == AttrURL {
				return &Result{Stderr: "boom\n", ExitCode: 1}
			}
			return nil
		}

		entry, err := f.db.Entry(context.Background(), "Email/work")
		require.ErrorIs(t, err, kpxcerr.ErrToolExecution)
		assert.Nil(t, entry)
		assert.Len(t, f.runner.Calls(), 3)
	})
}

func TestInactivityTimeout(t *testing.T) {
	t.Parallel()

	t.Run("locks after timeout", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.unlock(t, 5*time.Second)

		f.clock.Advance(6 * time.Second)
		assert.True(t, f.db.IsLocked())

		_, err := f.db.Search(context.Background(), "mail")
		require.ErrorIs(t, err, kpxcerr.ErrLocked)
		assert.Empty(t, f.runner.Calls())
		assert.Equal(t, int64(1), f.metrics.Snapshot().AutoLocks)
	})

	t.Run("every invocation extends the window", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.unlock(t, 5*time.Second)

		f.clock.Advance(4 * time.Second)
		_, err := f.db.Search(context.Background(), "mail")
		require.NoError(t, err)

		f.clock.Advance(4 * time.Second)
		assert.False(t, f.db.IsLocked())

		f.clock.Advance(2 * time.Second)
		assert.True(t, f.db.IsLocked())
	})

	t.Run("failed invocation still extends the window", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.unlock(t, 5*time.Second)

		f.clock.Advance(4 * time.Second)
		_, err := f.db.Entry(context.Background(), "Nope")
		require.ErrorIs(t, err, kpxcerr.ErrToolExecution)

		f.clock.Advance(4 * time.Second)
		assert.False(t, f.db.IsLocked())
	})

	t.Run("zero timeout never expires", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.unlock(t, 0)

		f.clock.Advance(30 * 24 * time.Hour)
		assert.False(t, f.db.IsLocked())
	})
}

func TestChangePath(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.unlock(t, 0)
	other := f.writeFile(t, "other.kdbx")

	f.db.ChangePath(other)
	assert.True(t, f.db.IsLocked())
	assert.Equal(t, other, f.db.Path())

	ok, err := f.db.Unlock(context.Background(), testPassphrase)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"ls", "-q", other}, f.runner.Calls()[0].args)
}

func TestChangePath_SamePathStillLocks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.unlock(t, 0)

	f.db.ChangePath(f.dbPath)
	assert.True(t, f.db.IsLocked())
}

func TestChangeInactivityLockTimeout(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.unlock(t, 0)

	f.db.ChangeInactivityLockTimeout(time.Second)
	assert.True(t, f.db.IsLocked())

	ok, err := f.db.Unlock(context.Background(), testPassphrase)
	require.NoError(t, err)
	require.True(t, ok)

	f.clock.Advance(2 * time.Second)
	assert.True(t, f.db.IsLocked())
}

func TestLock(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.unlock(t, time.Minute)

	f.db.Lock()
	assert.True(t, f.db.IsLocked())
	f.db.Lock()
	assert.True(t, f.db.IsLocked())
}

func TestStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.initialize(t, time.Minute)

	st := f.db.Status()
	assert.True(t, st.Locked)
	assert.Equal(t, f.dbPath, st.Path)
	assert.Equal(t, time.Minute, st.InactivityTimeout)
	assert.True(t, st.ExpiresAt.IsZero())

	ok, err := f.db.Unlock(context.Background(), testPassphrase)
	require.NoError(t, err)
	require.True(t, ok)

	f.clock.Advance(15 * time.Second)
	st = f.db.Status()
	assert.False(t, st.Locked)
	assert.Equal(t, t0.Add(time.Minute), st.ExpiresAt)
	assert.Equal(t, 45*time.Second, st.TimeUntilLock)

	f.clock.Advance(time.Hour)
	st = f.db.Status()
	assert.True(t, st.Locked)
	assert.Zero(t, st.TimeUntilLock)
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.unlock(t, time.Minute)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			_, _ = f.db.Search(context.Background(), "mail")
			_ = f.db.IsLocked()
			_ = f.db.Status()
		})
	}
	wg.Go(func() {
		f.db.ChangeInactivityLockTimeout(time.Minute)
	})
	wg.Wait()

	assert.NotPanics(t, func() { f.db.Lock() })
}
