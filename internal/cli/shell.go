package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/mrz1836/kpxc/internal/config"
	"github.com/mrz1836/kpxc/internal/fileutil"
	"github.com/mrz1836/kpxc/internal/keepassxc"
	"github.com/mrz1836/kpxc/internal/metrics"
	"github.com/mrz1836/kpxc/internal/output"
	kpxcerr "github.com/mrz1836/kpxc/pkg/errors"
)

// shellCmd starts the interactive launcher.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive shell that keeps the database unlocked",
	Long: `Start an interactive shell holding one database session.

The passphrase is asked for once and kept in memory until the inactivity
timeout elapses or you run "lock". Edits to the config file are picked up
while the shell runs: a new database path, key file or timeout locks the
session.

Type "help" inside the shell for its commands.`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(shellCmd)
}

const (
	shellHistoryFile   = "shell_history"
	suggestionDistance = 2
)

// errQuit ends the shell loop.
var errQuit = errors.New("quit")

// lineReader is the part of liner.State the shell uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	PasswordPrompt(prompt string) (string, error)
	AppendHistory(item string)
}

type shellCommand struct {
	name    string
	aliases []string
	usage   string
	summary string
	// run receives everything after the command word, trimmed.
	run func(s *shell, ctx context.Context, arg string) error
}

// shell is the interactive loop around one Database.
type shell struct {
	db         *keepassxc.Database
	in         lineReader
	out        io.Writer
	styles     *output.Styles
	log        keepassxc.Logger
	metrics    *metrics.Metrics
	maxResults atomic.Int64

	// results holds the names from the last search for #index lookups.
	results []string

	mu      sync.Mutex
	notices []string
}

func newShell(db *keepassxc.Database, in lineReader, w io.Writer, st *output.Styles, log keepassxc.Logger, maxResults int) *shell {
	s := &shell{
		db:      db,
		in:      in,
		out:     w,
		styles:  st,
		log:     log,
		metrics: metrics.Global,
	}
	s.maxResults.Store(int64(maxResults))
	return s
}

func shellCommands() []shellCommand {
	return []shellCommand{
		{name: "search", aliases: []string{"s"}, usage: "search <query>", summary: "find entries by name", run: (*shell).cmdSearch},
		{name: "show", usage: "show <name|#index> [-a <attribute>]", summary: "show an entry, or print one attribute", run: (*shell).cmdShow},
		{name: "unlock", usage: "unlock", summary: "enter the passphrase", run: (*shell).cmdUnlock},
		{name: "lock", usage: "lock", summary: "forget the passphrase now", run: (*shell).cmdLock},
		{name: "status", usage: "status", summary: "show session state", run: (*shell).cmdStatus},
		{name: "path", usage: "path <file>", summary: "switch to another database", run: (*shell).cmdPath},
		{name: "timeout", usage: "timeout <seconds>", summary: "set the inactivity lock (0 = never)", run: (*shell).cmdTimeout},
		{name: "stats", usage: "stats", summary: "show keepassxc-cli call counters", run: (*shell).cmdStats},
		{name: "help", aliases: []string{"?"}, usage: "help", summary: "list commands", run: (*shell).cmdHelp},
		{name: "quit", aliases: []string{"exit"}, usage: "quit", summary: "leave the shell", run: func(*shell, context.Context, string) error { return errQuit }},
	}
}

func runShell(cmd *cobra.Command, _ []string) error {
	cc := Context()
	ctx := cmd.Context()

	db := cc.NewDatabase()
	if err := db.Initialize(ctx, cc.DatabaseOptions()); err != nil {
		if errors.Is(err, kpxcerr.ErrToolNotFound) {
			return err
		}
		_ = output.FormatError(cmd.ErrOrStderr(), err, output.FormatText)
	}
	defer db.Lock()

	line := liner.NewLiner()
	defer func() { _ = line.Close() }()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeShellLine)

	historyPath := filepath.Join(cc.Cfg.Home, shellHistoryFile)
	loadHistory(line, historyPath)
	defer saveHistory(line, historyPath)

	sh := newShell(db, line, cmd.OutOrStdout(), cc.Styles, cc.Log.Named("shell"), cc.Cfg.Search.MaxResults)

	w := &configWatcher{
		path:     config.Path(cc.Cfg.Home),
		debounce: defaultWatchDebounce,
		log:      cc.Log.Named("watch"),
		load: func() (*config.Config, error) {
			return reloadConfig(cmd, cc.Cfg.Home)
		},
		apply: func(next *config.Config) { sh.applyConfig(ctx, next) },
	}
	watchCtx, stopWatch := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		if err := w.Run(watchCtx); err != nil {
			cc.Log.Error("config watcher stopped: %v", err)
		}
	}()
	// Runs before the deferred Lock and Close above.
	defer func() {
		stopWatch()
		<-watchDone
	}()

	return sh.run(ctx)
}

// reloadConfig reads the config file again, keeping env and flag overrides.
func reloadConfig(cmd *cobra.Command, home string) (*config.Config, error) {
	next, err := config.Load(config.Path(home))
	if err != nil {
		return nil, err
	}
	config.ApplyEnvironment(next)
	next.Home = home
	dbFlags.apply(cmd.Flags(), next)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return next, nil
}

func loadHistory(line *liner.State, path string) {
	f, err := os.Open(path) //nolint:gosec // G304: history path is under the kpxc home
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	_, _ = line.ReadHistory(f)
}

func saveHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // G304: history path is under the kpxc home
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	_, _ = line.WriteHistory(f)
}

func completeShellLine(line string) []string {
	if strings.Contains(line, " ") {
		return nil
	}
	var matches []string
	for _, c := range shellCommands() {
		if strings.HasPrefix(c.name, strings.ToLower(line)) {
			matches = append(matches, c.name)
		}
	}
	return matches
}

func (s *shell) run(ctx context.Context) error {
	outln(s.out, s.styles.Muted.Render(`kpxc shell. Type "help" for commands.`))

	for ctx.Err() == nil {
		s.flushNotices()

		input, err := s.in.Prompt(s.prompt())
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				outln(s.out)
				return nil
			}
			return fmt.Errorf("reading command: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		s.in.AppendHistory(input)

		if err := s.execute(ctx, input); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			s.printError(err)
		}
	}
	return nil
}

func (s *shell) prompt() string {
	if s.db.IsLocked() {
		return "kpxc (locked)> "
	}
	return "kpxc> "
}

func (s *shell) execute(ctx context.Context, input string) error {
	name, arg := splitCommand(input)

	for _, c := range shellCommands() {
		if c.name == name || slices.Contains(c.aliases, name) {
			return c.run(s, ctx, arg)
		}
	}
	return unknownCommand(name)
}

// splitCommand separates the lowercased command word from the rest of the
// line. The rest keeps its inner spacing so entry names survive intact.
func splitCommand(input string) (name, arg string) {
	input = strings.TrimSpace(input)
	i := strings.IndexFunc(input, unicode.IsSpace)
	if i < 0 {
		return strings.ToLower(input), ""
	}
	return strings.ToLower(input[:i]), strings.TrimSpace(input[i:])
}

func unknownCommand(name string) error {
	err := kpxcerr.WithDetails(kpxcerr.ErrInvalidInput, map[string]string{"command": name})
	if suggestion := suggestCommand(name); suggestion != "" {
		return kpxcerr.WithSuggestion(err, fmt.Sprintf("did you mean %q?", suggestion))
	}
	return kpxcerr.WithSuggestion(err, `type "help" for the list of commands`)
}

// suggestCommand returns the closest command name within suggestionDistance edits.
func suggestCommand(name string) string {
	var candidates []string
	canonical := map[string]string{}
	for _, c := range shellCommands() {
		for _, n := range append([]string{c.name}, c.aliases...) {
			if len(n) < 2 {
				continue
			}
			candidates = append(candidates, n)
			canonical[n] = c.name
		}
	}
	return canonical[closestWord(name, candidates, suggestionDistance)]
}

// closestWord returns the candidate with the smallest edit distance to word,
// or "" when none is within maxDist.
func closestWord(word string, candidates []string, maxDist int) string {
	best, bestDist := "", maxDist+1
	for _, candidate := range candidates {
		if d := levenshtein.ComputeDistance(word, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}

// withUnlock runs fn, and when the database turns out to be locked asks for
// the passphrase and runs fn once more.
func (s *shell) withUnlock(ctx context.Context, fn func() error) error {
	err := fn()
	if !errors.Is(err, kpxcerr.ErrLocked) {
		return err
	}

	ok, err := s.unlock(ctx)
	if err != nil || !ok {
		return err
	}
	return fn()
}

// unlock prompts for the passphrase. A rejected passphrase or an aborted
// prompt reports false without an error.
func (s *shell) unlock(ctx context.Context) (bool, error) {
	passphrase, err := s.in.PasswordPrompt(unlockPrompt(s.db.Status()))
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			outln(s.out, s.styles.Muted.Render("Cancelled."))
			return false, nil
		}
		return false, fmt.Errorf("reading passphrase: %w", err)
	}

	ok, err := s.db.Unlock(ctx, passphrase)
	if err != nil {
		return false, err
	}
	if !ok {
		outln(s.out, s.styles.Error.Render("Wrong passphrase or key file."))
		return false, nil
	}
	outln(s.out, s.styles.Success.Render("Unlocked."))
	return true, nil
}

func (s *shell) cmdSearch(ctx context.Context, query string) error {
	if query == "" {
		return usageError("search <query>")
	}

	return s.withUnlock(ctx, func() error {
		names, err := s.db.Search(ctx, query)
		if err != nil {
			return err
		}
		s.results = names
		return output.WriteResults(s.out, output.NewResultList(names, int(s.maxResults.Load())), s.styles)
	})
}

func (s *shell) cmdShow(ctx context.Context, arg string) error {
	target, attr, err := parseShowArg(arg)
	if err != nil {
		return err
	}

	name, err := s.resolveEntryName(target)
	if err != nil {
		return err
	}

	return s.withUnlock(ctx, func() error {
		entry, err := s.db.Entry(ctx, name)
		if err != nil {
			return err
		}
		if attr != "" {
			value, _ := entry.Get(attr)
			outln(s.out, value)
			return nil
		}
		entry.Password = output.MaskSecret(entry.Password)
		return writeEntry(s.out, entry, s.styles)
	})
}

// showAttrFlag separates the entry from the attribute in "show <name> -a <attr>".
const showAttrFlag = "-a"

// parseShowArg splits "<name> [-a <attr>]". Only a trailing "-a <word>" is
// an attribute, so any title, including one ending in "Notes", can be shown.
func parseShowArg(arg string) (name, attr string, err error) {
	const usage = "show <name|#index> [-a <attribute>]"

	name = arg
	if fields := strings.Fields(arg); len(fields) >= 2 && fields[len(fields)-2] == showAttrFlag {
		raw := fields[len(fields)-1]
		canonical, ok := keepassxc.CanonicalAttribute(raw)
		if !ok {
			return "", "", kpxcerr.WithSuggestion(
				kpxcerr.WithDetails(kpxcerr.ErrInvalidInput, map[string]string{"attribute": raw}),
				"use one of "+strings.Join(keepassxc.EntryAttributes(), ", "),
			)
		}
		attr = canonical
		name = strings.TrimSpace(strings.TrimSuffix(strings.TrimRightFunc(arg, unicode.IsSpace), raw))
		name = strings.TrimSpace(strings.TrimSuffix(name, showAttrFlag))
	}
	if name == "" {
		return "", "", usageError(usage)
	}
	return name, attr, nil
}

// resolveEntryName turns "#3" into the third name of the last search.
func (s *shell) resolveEntryName(arg string) (string, error) {
	arg = strings.TrimPrefix(arg, "/")
	if !strings.HasPrefix(arg, "#") {
		return arg, nil
	}

	n, err := strconv.Atoi(arg[1:])
	if err != nil || n < 1 || n > len(s.results) {
		return "", kpxcerr.WithSuggestion(
			kpxcerr.WithDetails(kpxcerr.ErrNotFound, map[string]string{"index": arg}),
			fmt.Sprintf("the last search returned %d result(s)", len(s.results)),
		)
	}
	return s.results[n-1], nil
}

func (s *shell) cmdUnlock(ctx context.Context, _ string) error {
	_, err := s.unlock(ctx)
	return err
}

func (s *shell) cmdLock(context.Context, string) error {
	s.db.Lock()
	s.results = nil
	outln(s.out, s.styles.Warning.Render("Locked."))
	return nil
}

func (s *shell) cmdStatus(context.Context, string) error {
	st := s.db.Status()

	state := s.styles.Success.Render("unlocked")
	if st.Locked {
		state = s.styles.Warning.Render("locked")
	}
	timeout := "never"
	if st.InactivityTimeout > 0 {
		timeout = formatDuration(st.InactivityTimeout)
	}
	keyFile := st.KeyFile
	if keyFile == "" {
		keyFile = s.styles.Muted.Render("none")
	}

	table := output.NewTable()
	table.AddRow(s.styles.Label.Render("state"), state)
	table.AddRow(s.styles.Label.Render("database"), st.Path)
	table.AddRow(s.styles.Label.Render("key file"), keyFile)
	table.AddRow(s.styles.Label.Render("timeout"), timeout)
	if !st.Locked && st.InactivityTimeout > 0 {
		table.AddRow(s.styles.Label.Render("locks in"), formatDuration(st.TimeUntilLock))
	}
	return table.Render(s.out)
}

func (s *shell) cmdPath(_ context.Context, path string) error {
	if path == "" {
		return usageError("path <file>")
	}
	if !fileutil.Exists(path) {
		if expanded, err := fileutil.ExpandHome(path); err != nil || !fileutil.Exists(expanded) {
			output.Warnf(s.out, "%s does not exist yet; unlock will fail until it does", path)
		}
	}
	s.db.ChangePath(path)
	s.results = nil
	output.Infof(s.out, "Database is now %s (locked)", s.db.Path())
	return nil
}

func (s *shell) cmdTimeout(_ context.Context, arg string) error {
	if arg == "" || strings.ContainsFunc(arg, unicode.IsSpace) {
		return usageError("timeout <seconds>")
	}
	secs, err := strconv.Atoi(arg)
	if err != nil || secs < 0 {
		return kpxcerr.WithSuggestion(
			kpxcerr.WithDetails(kpxcerr.ErrInvalidInput, map[string]string{"timeout": arg}),
			"use a whole number of seconds, 0 disables the lock",
		)
	}
	s.db.ChangeInactivityLockTimeout(time.Duration(secs) * time.Second)
	s.results = nil
	output.Infof(s.out, "Inactivity timeout set to %ds (locked)", secs)
	return nil
}

func (s *shell) cmdStats(context.Context, string) error {
	snap := s.metrics.Snapshot()

	table := output.NewTable()
	table.AddRow(s.styles.Label.Render("cli calls"), fmt.Sprintf("%d (%d failed)", snap.CLICallsTotal, snap.CLIFailures))
	table.AddRow(s.styles.Label.Render("avg latency"), fmt.Sprintf("%.1fms", s.metrics.CLILatencyAvgMs()))
	table.AddRow(s.styles.Label.Render("unlocks"), fmt.Sprintf("%d (%.0f%% accepted)", snap.UnlockAttempts, s.metrics.UnlockSuccessRate()))
	table.AddRow(s.styles.Label.Render("auto locks"), strconv.FormatInt(snap.AutoLocks, 10))
	table.AddRow(s.styles.Label.Render("searches"), fmt.Sprintf("%d (%d hits)", snap.Searches, snap.SearchHits))
	table.AddRow(s.styles.Label.Render("entries read"), strconv.FormatInt(snap.EntryReads, 10))
	return table.Render(s.out)
}

func (s *shell) cmdHelp(context.Context, string) error {
	table := output.NewTable()
	for _, c := range shellCommands() {
		usage := c.usage
		if len(c.aliases) > 0 {
			usage += " (" + strings.Join(c.aliases, ", ") + ")"
		}
		table.AddRow(s.styles.Label.Render(usage), c.summary)
	}
	return table.Render(s.out)
}

// applyConfig reacts to a reloaded config file. Called from the watcher.
// The database is re-initialized with the new settings, and any change of
// path, key file or timeout locks it.
func (s *shell) applyConfig(ctx context.Context, next *config.Config) {
	before := s.db.Status()

	opts := keepassxc.Options{
		Path:              before.Path,
		KeyFile:           next.Database.KeyFile,
		InactivityTimeout: next.InactivityTimeout(),
	}
	if next.Database.Path != "" {
		opts.Path = next.Database.Path
	}
	err := s.db.Initialize(ctx, opts)
	after := s.db.Status()

	if after.Path != before.Path {
		s.notify(fmt.Sprintf("Config changed: database is now %s (locked)", after.Path))
	}
	if after.KeyFile != before.KeyFile {
		if after.KeyFile == "" {
			s.notify("Config changed: key file removed (locked)")
		} else {
			s.notify(fmt.Sprintf("Config changed: key file is now %s (locked)", after.KeyFile))
		}
	}
	if after.InactivityTimeout != before.InactivityTimeout {
		s.notify(fmt.Sprintf("Config changed: inactivity timeout is now %ds (locked)", int(after.InactivityTimeout.Seconds())))
	}
	if err != nil && !errors.Is(err, kpxcerr.ErrNotInitialized) {
		s.log.Error("applying config: %v", err)
		s.notify("Config problem: " + err.Error())
	}

	s.maxResults.Store(int64(next.Search.MaxResults))
}

// notify queues a message for display before the next prompt.
func (s *shell) notify(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, msg)
}

func (s *shell) flushNotices() {
	s.mu.Lock()
	notices := s.notices
	s.notices = nil
	s.mu.Unlock()

	for _, n := range notices {
		output.Info(s.out, n)
	}
}

func (s *shell) printError(err error) {
	s.log.Error("shell: %v", err)
	_ = output.FormatError(s.out, err, output.FormatText)
}

func usageError(usage string) error {
	return kpxcerr.WithSuggestion(kpxcerr.ErrInvalidInput, "usage: "+usage)
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	if seconds == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}
