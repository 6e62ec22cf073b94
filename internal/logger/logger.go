// Package logger provides process-wide structured logging on top of log/slog.
//
// The store packages log through the package-level helpers so callers do not
// have to thread a logger through every transaction. Init may be called once
// at startup to reconfigure level, format and destination; before that the
// package logs INFO and above as text to stdout.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

var (
	mu      sync.RWMutex
	slogger = slog.New(slog.NewTextHandler(os.Stdout, nil))
)

// Init initializes the logger with the given configuration.
// Output can be "stdout", "stderr", or a file path.
func Init(cfg Config) error {
	var out io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		out = f
	}

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	mu.Lock()
	slogger = slog.New(handler)
	mu.Unlock()

	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case "", "INFO":
		return slog.LevelInfo, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// Default returns the current process-wide logger.
func Default() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// With returns a logger with the given attributes attached.
func With(args ...any) *slog.Logger {
	return Default().With(args...)
}

// Debug logs at debug level with key/value pairs.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }

// Info logs at info level with key/value pairs.
func Info(msg string, args ...any) { Default().Info(msg, args...) }

// Warn logs at warn level with key/value pairs.
func Warn(msg string, args ...any) { Default().Warn(msg, args...) }

// Error logs at error level with key/value pairs.
func Error(msg string, args ...any) { Default().Error(msg, args...) }
