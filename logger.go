package canopy

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with canopy-specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogBuild logs a forest build.
func (l *Logger) LogBuild(ctx context.Context, items, trees int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "build failed",
			"items", items,
			"trees", trees,
			"duration", duration,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "build complete",
		"items", items,
		"trees", trees,
		"duration", duration,
	)
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, k, effort int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"effort", effort,
			"duration", duration,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "search complete",
		"k", k,
		"effort", effort,
		"duration", duration,
	)
}

// LogLoad logs an index load.
func (l *Logger) LogLoad(ctx context.Context, path string, items uint64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"path", path,
			"duration", duration,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "load complete",
		"path", path,
		"items", items,
		"duration", duration,
	)
}

// LogSave logs an index save.
func (l *Logger) LogSave(ctx context.Context, path string, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"path", path,
			"duration", duration,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "save complete",
		"path", path,
		"duration", duration,
	)
}

// LogPublish logs an artifact publish.
func (l *Logger) LogPublish(ctx context.Context, name string, version uint64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "publish failed",
			"name", name,
			"duration", duration,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "publish complete",
		"name", name,
		"version", version,
		"duration", duration,
	)
}
