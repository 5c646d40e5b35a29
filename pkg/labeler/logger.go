package labeler

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with labeler-specific helpers.
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
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithSession tags every record with the session id.
func (l *Logger) WithSession(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("session", id),
	}
}

// LogOpen logs the dataset index being built.
func (l *Logger) LogOpen(containers, samples int) {
	l.Info("dataset index built",
		"containers", containers,
		"samples", samples,
	)
}

// LogFlush logs a write-back of one overlay.
func (l *Logger) LogFlush(index int, path string, event int, err error) {
	if err != nil {
		l.Error("flush failed",
			"index", index,
			"container", path,
			"event", event,
			"error", err,
		)
	} else {
		l.Info("flush completed",
			"index", index,
			"container", path,
			"event", event,
		)
	}
}

// LogInvalidate logs a wholesale cache invalidation. Indices listed in
// discarded had unflushed edits that are now lost.
func (l *Logger) LogInvalidate(generation uint64, discarded []uint32) {
	if len(discarded) > 0 {
		l.Warn("cache invalidated, unflushed edits discarded",
			"generation", generation,
			"discarded", discarded,
		)
	} else {
		l.Debug("cache invalidated",
			"generation", generation,
		)
	}
}

// LogSession logs a session save or load.
func (l *Logger) LogSession(op, path string, err error) {
	if err != nil {
		l.Error("session "+op+" failed",
			"path", path,
			"error", err,
		)
	} else {
		l.Info("session "+op+" completed",
			"path", path,
		)
	}
}

// LogClose logs one container being closed.
func (l *Logger) LogClose(path string, err error) {
	if err != nil {
		l.Error("container close failed",
			"container", path,
			"error", err,
		)
	} else {
		l.Info("container closed",
			"container", path,
		)
	}
}
