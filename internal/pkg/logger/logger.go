package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	defaultLogger *slog.Logger
	level         = new(slog.LevelVar)
	once          sync.Once
	mu            sync.RWMutex
)

// Initialize sets up the structured logger
func Initialize() {
	once.Do(func() {
		level.Set(slog.LevelInfo)
		mu.Lock()
		defaultLogger = newLogger(os.Stderr)
		mu.Unlock()
	})
}

func newLogger(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: false,
	})
	return slog.New(handler)
}

// SetOutput redirects log output, mostly for tests and the serve command
// which logs to stdout under a supervisor.
func SetOutput(w io.Writer) {
	Initialize()
	mu.Lock()
	defaultLogger = newLogger(w)
	mu.Unlock()
}

// SetLevel parses one of debug, info, warn or error and applies it.
func SetLevel(name string) error {
	Initialize()
	l, err := ParseLevel(name)
	if err != nil {
		return err
	}
	level.Set(l)
	return nil
}

// ParseLevel maps a config level name to a slog level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// Get returns the default structured logger
func Get() *slog.Logger {
	Initialize() // sync.Once ensures it only runs once
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Info logs an info level message
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Warn logs a warning level message
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs an error level message
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

// Debug logs a debug level message
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}
