// Package logging owns the process-wide slog setup and hands out named child loggers.
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

// Root is the name every child logger is nested under.
const Root = "lettercast"

// FileName is the log file written inside the configured log directory.
const FileName = "lettercast.log"

var (
	setupOnce sync.Once
	setupErr  error
	logFile   *os.File
)

// Setup installs the default logger once per process. Later calls are no-ops
// and return the result of the first call. With an empty dir only stderr is used.
func Setup(level, dir string) error {
	setupOnce.Do(func() {
		var w io.Writer = os.Stderr
		if dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				setupErr = fmt.Errorf("create log dir: %w", err)
				return
			}
			f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // operator-supplied path
			if err != nil {
				setupErr = fmt.Errorf("open log file: %w", err)
				return
			}
			logFile = f
			w = io.MultiWriter(os.Stderr, f)
		}
		slog.SetDefault(New(w, level))
	})
	return setupErr
}

// Close flushes and closes the log file opened by Setup, if any.
func Close() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// New builds a text logger writing to w at the given level.
func New(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// For returns a child of the default logger tagged lettercast.<module>.
func For(module string) *slog.Logger {
	return Named(slog.Default(), module)
}

// Named returns a child of base tagged lettercast.<module>.
func Named(base *slog.Logger, module string) *slog.Logger {
	return base.With("logger", Root+"."+module)
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
