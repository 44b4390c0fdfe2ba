// Package keepassxc drives keepassxc-cli to read a KeePassXC database.
//
// A Database keeps the passphrase in memory after a successful unlock and
// re-supplies it on every invocation, until the inactivity timeout elapses
// or the caller locks it. Every call spawns one keepassxc-cli process and
// blocks until it exits.
package keepassxc

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mrz1836/kpxc/internal/fileutil"
	"github.com/mrz1836/kpxc/internal/metrics"
	"github.com/mrz1836/kpxc/internal/session"
	kpxcerr "github.com/mrz1836/kpxc/pkg/errors"
)

// Logger is the logging surface the Database needs.
// *config.Logger satisfies it.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Options configure which database is opened and how long it stays unlocked.
type Options struct {
	// Path is the .kdbx file. A leading "~" is expanded.
	Path string
	// KeyFile is optional. When set it is passed to every invocation.
	KeyFile string
	// InactivityTimeout locks the database after this long without a
	// keepassxc-cli invocation. Zero disables the timeout.
	InactivityTimeout time.Duration
}

// Status is a snapshot of the session.
type Status struct {
	Locked            bool          `json:"locked"`
	Path              string        `json:"path"`
	KeyFile           string        `json:"key_file,omitempty"`
	InactivityTimeout time.Duration `json:"inactivity_timeout"`
	ExpiresAt         time.Time     `json:"expires_at,omitzero"`
	TimeUntilLock     time.Duration `json:"time_until_lock"`
}

// Database is a lockable handle on one KeePassXC database.
//
// All methods are safe for concurrent use. A single mutex is held for the
// whole of each operation, subprocess included, so at most one
// keepassxc-cli process runs per Database.
type Database struct {
	mu sync.Mutex

	cli     string
	runner  Runner
	log     Logger
	metrics *metrics.Metrics
	now     func() time.Time
	limiter *rate.Limiter

	cache       *session.Cache
	path        string
	keyFile     string
	pathChecked bool
	cliChecked  bool
}

// Option customizes a Database.
type Option func(*Database)

// WithCLI sets the keepassxc-cli executable name or path.
func WithCLI(name string) Option {
	return func(d *Database) {
		if name != "" {
			d.cli = name
		}
	}
}

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(d *Database) {
		if r != nil {
			d.runner = r
		}
	}
}

// WithLogger sets the logger. Passphrases and stdout are never logged.
func WithLogger(l Logger) Option {
	return func(d *Database) {
		if l != nil {
			d.log = l
		}
	}
}

// WithMetrics records counters into m instead of metrics.Global.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Database) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(d *Database) {
		if now != nil {
			d.now = now
		}
	}
}

// WithUnlockLimiter throttles Unlock attempts. Callers block until the
// limiter grants a slot or their context ends.
func WithUnlockLimiter(l *rate.Limiter) Option {
	return func(d *Database) {
		d.limiter = l
	}
}

// New returns an uninitialized, locked Database.
func New(opts ...Option) *Database {
	d := &Database{
		cli:     DefaultCLI,
		runner:  NewExecRunner(),
		log:     nopLogger{},
		metrics: metrics.Global,
		now:     time.Now,
		cache:   session.NewCache(session.DefaultTimeout),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Initialize points the Database at a database file and checks that
// keepassxc-cli, the database and the key file are all reachable.
//
// Changing the path or the inactivity timeout locks the database.
func (d *Database) Initialize(ctx context.Context, opts Options) error {
	if opts.InactivityTimeout < 0 {
		return kpxcerr.WithDetails(kpxcerr.ErrInvalidInput, map[string]string{
			"inactivity_timeout": opts.InactivityTimeout.String(),
		})
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if opts.InactivityTimeout != d.cache.Timeout() {
		d.log.Debug("inactivity timeout changed to %s, locking", opts.InactivityTimeout)
		d.cache.SetTimeout(opts.InactivityTimeout)
	}

	if !d.cliChecked {
		if err := d.probe(ctx); err != nil {
			return err
		}
		d.cliChecked = true
	}

	if strings.TrimSpace(opts.Path) == "" {
		return kpxcerr.ErrNotInitialized
	}
	d.setPathLocked(opts.Path)

	// The key file is kept even when the database is missing, so a later
	// ChangePath to a file that exists still unlocks with it.
	keyErr := d.setKeyFileLocked(opts.KeyFile)
	if err := d.verifyPathLocked(); err != nil {
		return err
	}
	return keyErr
}

// IsLocked reports whether no usable passphrase is cached.
// An elapsed inactivity timeout is applied here, so a stale passphrase
// is discarded the moment anyone looks.
func (d *Database) IsLocked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lockedLocked()
}

// Unlock tries passphrase against the database.
//
// A rejected passphrase returns false and a nil error. Errors are reserved
// for infrastructure failures: missing tool, missing database, not
// initialized, or ctx ending while waiting for the unlock limiter.
func (d *Database) Unlock(ctx context.Context, passphrase string) (bool, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return false, fmt.Errorf("waiting to unlock: %w", err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.path == "" {
		return false, kpxcerr.ErrNotInitialized
	}
	if err := d.verifyPathLocked(); err != nil {
		return false, err
	}

	secret := []byte(passphrase)
	defer clear(secret)

	res, err := d.run(ctx, secret, cmdList, "-q", d.path)
	if err != nil {
		return false, err
	}

	ok := res.ExitCode == 0
	d.metrics.RecordUnlock(ok)
	if !ok {
		d.cache.Clear()
		d.log.Debug("unlock rejected for %s", d.path)
		return false, nil
	}

	d.cache.Store(secret, d.now())
	d.log.Debug("unlocked %s", d.path)
	return true, nil
}

// Search returns the names of entries matching query.
// An empty slice means keepassxc-cli found nothing.
func (d *Database) Search(ctx context.Context, query string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	secret, ok := d.secretLocked()
	if !ok {
		return nil, kpxcerr.ErrLocked
	}

	res, err := d.run(ctx, secret, cmdSearch, "-q", d.path, query)
	if err != nil {
		return nil, err
	}

	if res.ExitCode != 0 {
		if strings.Contains(res.Stderr, noResultsMarker) {
			d.metrics.RecordSearch(0)
			return []string{}, nil
		}
		return nil, toolError(res)
	}

	names := parseEntryNames(res.Stdout)
	d.metrics.RecordSearch(len(names))
	return names, nil
}

// Entry fetches every attribute of the named entry.
// Attributes are read one invocation at a time and the first failure
// aborts the whole read.
func (d *Database) Entry(ctx context.Context, name string) (*Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	secret, ok := d.secretLocked()
	if !ok {
		return nil, kpxcerr.ErrLocked
	}

	entry := &Entry{Name: name}
	target := entryArg(name)
	for _, attr := range EntryAttributes() {
		res, err := d.run(ctx, secret, cmdShow, "-q", "-a", attr, d.path, target)
		if err != nil {
			return nil, err
		}
		if res.ExitCode != 0 {
			return nil, toolError(res)
		}
		entry.set(attr, attributeValue(res.Stdout))
	}

	d.metrics.RecordEntryRead()
	return entry, nil
}

// ChangePath switches to another database file and locks.
// The new path is checked on the next Unlock.
func (d *Database) ChangePath(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.setPathLocked(path)
	d.pathChecked = false
	d.cache.Clear()
}

// ChangeInactivityLockTimeout sets a new inactivity timeout and locks.
// Negative values are treated as zero.
func (d *Database) ChangeInactivityLockTimeout(timeout time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache.SetTimeout(timeout)
}

// Lock discards the cached passphrase immediately.
func (d *Database) Lock() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache.Clear()
}

// Status returns the current session state.
func (d *Database) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	locked := d.lockedLocked()
	info := d.cache.Info(d.now())
	st := Status{
		Locked:            locked,
		Path:              d.path,
		KeyFile:           d.keyFile,
		InactivityTimeout: info.Timeout,
	}
	if !locked {
		st.ExpiresAt = info.ExpiresAt
		st.TimeUntilLock = info.TTL()
	}
	return st
}

// Path returns the configured database path.
func (d *Database) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

func (d *Database) setPathLocked(path string) {
	if expanded, err := fileutil.ExpandHome(path); err == nil {
		path = expanded
	}
	if path != d.path {
		d.path = path
		d.pathChecked = false
		d.cache.Clear()
	}
}

func (d *Database) verifyPathLocked() error {
	if d.pathChecked {
		return nil
	}
	if !fileutil.Exists(d.path) {
		return kpxcerr.WithDetails(kpxcerr.ErrDatabaseNotFound, map[string]string{"path": d.path})
	}
	d.pathChecked = true
	return nil
}

// setKeyFileLocked stores the resolved key file. A different key file
// locks the database.
func (d *Database) setKeyFileLocked(keyFile string) error {
	resolved := ""
	if strings.TrimSpace(keyFile) != "" {
		var err error
		resolved, err = fileutil.Resolve(keyFile)
		if err != nil || !fileutil.Exists(resolved) {
			return kpxcerr.WithDetails(kpxcerr.ErrKeyFileNotFound, map[string]string{"key_file": keyFile})
		}
	}
	if resolved != d.keyFile {
		d.keyFile = resolved
		d.cache.Clear()
	}
	return nil
}

// lockedLocked applies the inactivity timeout and reports whether the
// database is locked. Callers hold d.mu.
func (d *Database) lockedLocked() bool {
	now := d.now()
	if d.cache.Expired(now) {
		d.metrics.RecordAutoLock()
		d.log.Debug("inactivity timeout elapsed, locking %s", d.path)
	}
	return !d.cache.Valid(now)
}

func (d *Database) secretLocked() ([]byte, bool) {
	if d.lockedLocked() {
		return nil, false
	}
	return d.cache.Secret(d.now())
}

// probe checks that the tool can be spawned. Its exit code is irrelevant.
func (d *Database) probe(ctx context.Context) error {
	if _, err := d.runner.Run(ctx, d.cli, nil, nil); err != nil {
		d.log.Error("cannot execute %s: %v", d.cli, err)
		return err
	}
	d.log.Debug("found %s", d.cli)
	return nil
}

// run invokes keepassxc-cli once with secret on stdin.
// Any spawned invocation, successful or not, restarts the inactivity timer.
func (d *Database) run(ctx context.Context, secret []byte, subcommand string, rest ...string) (*Result, error) {
	args := buildArgs(d.keyFile, subcommand, rest)
	start := d.now()

	res, err := d.runner.Run(ctx, d.cli, args, secret)
	if err != nil {
		d.log.Error("%s %s: %v", d.cli, loggedArgs(args), err)
		return nil, err
	}

	end := d.now()
	d.cache.Touch(end)
	d.metrics.RecordCLICall(end.Sub(start), res.ExitCode)
	d.log.Debug("%s %s: exit=%d stdout=%dB stderr=%q",
		d.cli, loggedArgs(args), res.ExitCode, len(res.Stdout), strings.TrimSpace(res.Stderr))

	return res, nil
}

func toolError(res *Result) error {
	return kpxcerr.WithDetails(kpxcerr.ErrToolExecution, map[string]string{
		"stderr":    strings.TrimRight(res.Stderr, "\r\n"),
		"exit_code": strconv.Itoa(res.ExitCode),
	})
}
