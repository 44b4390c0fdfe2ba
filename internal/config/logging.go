package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mrz1836/kpxc/internal/fileutil"
)

// LogLevel controls how much the log file receives.
type LogLevel int

// Levels in increasing verbosity.
const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelDebug
)

var logLevelNames = map[LogLevel]string{ //nolint:gochecknoglobals // lookup table
	LogLevelOff:   "off",
	LogLevelError: "error",
	LogLevelDebug: "debug",
}

// ParseLogLevel parses a level name. Unknown values mean error.
func ParseLogLevel(s string) LogLevel {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "none":
		return LogLevelOff
	default:
		for level, name := range logLevelNames {
			if name == v {
				return level
			}
		}
		return LogLevelError
	}
}

func (l LogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return logLevelNames[LogLevelError]
}

// logSink is the destination shared by a logger and its named children.
type logSink struct {
	mu     sync.Mutex
	level  LogLevel
	w      io.Writer
	closer io.Closer
	now    func() time.Time
}

// Logger writes lines of the form
//
//	2006-01-02T15:04:05.000 DEBUG [component] message
//
// Loggers returned by Named share their parent's file and level.
// It is safe for concurrent use.
type Logger struct {
	sink *logSink
	name string
}

// NewLogger appends to filePath, creating it and its directory if needed.
// An off level or empty path yields a logger that writes nothing.
func NewLogger(level LogLevel, filePath string) (*Logger, error) {
	if level == LogLevelOff || filePath == "" {
		return NullLogger(), nil
	}

	filePath, err := fileutil.ExpandHome(filePath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	// #nosec G304 -- log file path is from validated config
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	l := NewWriterLogger(level, f)
	l.sink.closer = f
	return l, nil
}

// NewWriterLogger logs to w. The caller keeps ownership of w.
func NewWriterLogger(level LogLevel, w io.Writer) *Logger {
	return &Logger{sink: &logSink{level: level, w: w, now: time.Now}}
}

// NullLogger discards everything.
func NullLogger() *Logger {
	return NewWriterLogger(LogLevelOff, nil)
}

// Named returns a logger tagging its lines with name. Nested names are
// joined with a dot.
func (l *Logger) Named(name string) *Logger {
	if l.name != "" {
		name = l.name + "." + name
	}
	return &Logger{sink: l.sink, name: name}
}

// Close closes the log file if the logger opened one. Later writes are dropped.
func (l *Logger) Close() error {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer, s.w = nil, nil
	return err
}

// SetLevel changes the level for this logger and every logger sharing its sink.
func (l *Logger) SetLevel(level LogLevel) {
	l.sink.mu.Lock()
	l.sink.level = level
	l.sink.mu.Unlock()
}

// Level returns the current level.
func (l *Logger) Level() LogLevel {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.level
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...any) {
	l.write(LogLevelDebug, format, args...)
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...any) {
	l.write(LogLevelError, format, args...)
}

func (l *Logger) write(level LogLevel, format string, args ...any) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil || level > s.level || s.level == LogLevelOff {
		return
	}

	var sb strings.Builder
	sb.WriteString(s.now().Format("2006-01-02T15:04:05.000"))
	sb.WriteByte(' ')
	sb.WriteString(strings.ToUpper(level.String()))
	if l.name != "" {
		sb.WriteString(" [" + l.name + "]")
	}
	sb.WriteByte(' ')
	fmt.Fprintf(&sb, format, args...)
	sb.WriteByte('\n')
	_, _ = io.WriteString(s.w, sb.String())
}
