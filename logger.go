package bkdgo

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with consistent field names for this
// library's operations.
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
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogSearch logs one nearest-neighbor query.
func (l *Logger) LogSearch(ctx context.Context, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "nearest search failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "nearest search completed",
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogBatchSearch logs a batch of nearest-neighbor queries.
func (l *Logger) LogBatchSearch(ctx context.Context, k, queries int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "batch search failed",
			"k", k,
			"queries", queries,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "batch search completed",
			"k", k,
			"queries", queries,
		)
	}
}
