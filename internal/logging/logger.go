package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels accepted by NewLogger and the logging.level setting.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// FileName is the log file NewLogger creates in its directory.
const FileName = "debug.log"

var slogLevels = map[string]slog.Level{
	LevelDebug: slog.LevelDebug,
	LevelInfo:  slog.LevelInfo,
	LevelWarn:  slog.LevelWarn,
	LevelError: slog.LevelError,
}

// Logger writes JSON log entries. Child loggers created by the With* methods
// carry their parent's attributes and share its output.
type Logger struct {
	slog *slog.Logger
	file *sharedFile
}

// sharedFile is the log file shared by a logger and all of its children.
type sharedFile struct {
	mu sync.Mutex
	f  *os.File
}

// NewLogger creates a Logger appending to {logDir}/debug.log, creating the
// directory when needed. An empty logDir logs to stderr.
//
// Entries below level are dropped; unknown levels mean INFO.
func NewLogger(logDir string, level string) (*Logger, error) {
	if logDir == "" {
		return NewWriterLogger(os.Stderr, level), nil
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(logDir, FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := NewWriterLogger(f, level)
	logger.file = &sharedFile{f: f}
	return logger, nil
}

// NewWriterLogger creates a Logger that writes to w.
// The caller owns w; Close does not close it.
func NewWriterLogger(w io.Writer, level string) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slogLevels[ParseLevel(level)],
	})
	return &Logger{slog: slog.New(handler)}
}

// NopLogger returns a Logger that discards everything.
func NopLogger() *Logger {
	return &Logger{slog: slog.New(slog.DiscardHandler)}
}

// WithCycle tags entries with the build cycle. In watch mode every rebuild
// is a new cycle.
func (l *Logger) WithCycle(cycle int) *Logger {
	return l.With("cycle", cycle)
}

// WithPhase tags entries with a phase name.
func (l *Logger) WithPhase(phase string) *Logger {
	return l.With("phase", phase)
}

// WithOperation tags entries with an operation name.
func (l *Logger) WithOperation(name string) *Logger {
	return l.With("operation", name)
}

// With returns a child logger carrying the alternating key-value pairs in
// args on every entry.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	return &Logger{slog: l.slog.With(args...), file: l.file}
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Info logs at INFO level.
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }

// Warn logs at WARN level.
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }

// Error logs at ERROR level.
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// Close syncs and closes the log file. It is a no-op for loggers that do not
// own a file, and closing twice is harmless. Children share the file, so
// close only the root logger.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	l.file.mu.Lock()
	defer l.file.mu.Unlock()

	if l.file.f == nil {
		return nil
	}
	f := l.file.f
	l.file.f = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// ParseLevel normalizes a level name, returning LevelInfo for anything it
// does not recognize.
func ParseLevel(level string) string {
	name := strings.ToUpper(strings.TrimSpace(level))
	if _, ok := slogLevels[name]; ok {
		return name
	}
	return LevelInfo
}

// ValidLevels returns the level names in increasing severity.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
