// Package logger owns the process-wide slog setup: one append-only log file
// per run, named by the run's start timestamp, closed on every exit path.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/config"
)

// Handle is the open log file for the current run.
type Handle struct {
	mu   sync.Mutex
	file *os.File
	path string
}

var (
	activeMu sync.Mutex
	active   *Handle
	exitFunc = os.Exit
)

// Setup opens <dir>/<unix-millis>.log, installs it as the slog default and
// returns the handle the caller must close before exiting.
func Setup(cfg config.LoggingConfig, runID string, start time.Time) (*Handle, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, strconv.FormatInt(start.UnixMilli(), 10)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", path, err)
	}

	var out io.Writer = f
	if cfg.Stderr {
		out = io.MultiWriter(f, os.Stderr)
	}
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}
	l := slog.New(handler)
	if runID != "" {
		l = l.With("run_id", runID)
	}
	slog.SetDefault(l)

	h := &Handle{file: f, path: path}
	activeMu.Lock()
	active = h
	activeMu.Unlock()
	return h, nil
}

// Path returns the log file location.
func (h *Handle) Path() string {
	return h.path
}

// Close flushes and closes the log file. It is safe to call more than once.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}
	syncErr := h.file.Sync()
	closeErr := h.file.Close()
	h.file = nil
	if closeErr != nil {
		return closeErr
	}
	return syncErr
}

// Fatal logs msg at error level, closes the active log file and terminates
// the process with status 1.
func Fatal(msg string, args ...any) {
	slog.Error(msg, append(args, "fatal", true)...)
	activeMu.Lock()
	h := active
	activeMu.Unlock()
	if h != nil {
		h.Close()
	}
	exitFunc(1)
}

// WithComponent returns the default logger tagged with component.
func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
