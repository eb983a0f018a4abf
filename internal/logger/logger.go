// Package logger provides structured logging for harvest.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	defaultLogger *slog.Logger
	mu            sync.RWMutex
)

func init() {
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// Options configures the logger.
type Options struct {
	Debug  bool         // Enable debug level logging
	Quiet  bool         // Only show errors
	JSON   bool         // Output as JSON
	Level  string       // Explicit level name; overrides Debug when set
	Output io.Writer    // Output destination (default: stderr)
	Logger *slog.Logger // Custom logger (overrides all other options)
}

// Init initializes the logger with the specified options.
func Init(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	if opts.Logger != nil {
		defaultLogger = opts.Logger
		return nil
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	if opts.Level != "" {
		parsed, err := ParseLevel(opts.Level)
		if err != nil {
			return err
		}
		level = parsed
	}
	if opts.Quiet {
		level = slog.LevelError
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(output, handlerOpts)
	}

	defaultLogger = slog.New(handler)
	return nil
}

// ParseLevel converts a level name (debug, info, warn, error) to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %q", name)
	}
}

// SetLogger replaces the package logger.
func SetLogger(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Debug logs a debug message.
func Debug(msg string, args ...any) { current().Debug(msg, args...) }

// Info logs an info message.
func Info(msg string, args ...any) { current().Info(msg, args...) }

// Warn logs a warning message.
func Warn(msg string, args ...any) { current().Warn(msg, args...) }

// Error logs an error message.
func Error(msg string, args ...any) { current().Error(msg, args...) }

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return current().With(args...)
}

// ForSource returns a logger tagged with a harvester source name.
func ForSource(source string) *slog.Logger {
	return current().With("source", source)
}

// DebugContext logs a debug message with context.
func DebugContext(ctx context.Context, msg string, args ...any) {
	current().DebugContext(ctx, msg, args...)
}

// InfoContext logs an info message with context.
func InfoContext(ctx context.Context, msg string, args ...any) {
	current().InfoContext(ctx, msg, args...)
}

// WarnContext logs a warning message with context.
func WarnContext(ctx context.Context, msg string, args ...any) {
	current().WarnContext(ctx, msg, args...)
}

// ErrorContext logs an error message with context.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	current().ErrorContext(ctx, msg, args...)
}
