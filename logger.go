package seqdb

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with seqdb-specific context.
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
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithDatabase adds the database name to the logger.
func (l *Logger) WithDatabase(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("db", name),
	}
}

// WithWorker adds a worker index field to the logger.
func (l *Logger) WithWorker(i int) *Logger {
	return &Logger{
		Logger: l.Logger.With("worker", i),
	}
}

// LogOpen logs the result of opening a database.
func (l *Logger) LogOpen(ctx context.Context, seqType SeqType, volumes, numOIDs int, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"seq_type", seqType.String(),
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "database opened",
			"seq_type", seqType.String(),
			"volumes", volumes,
			"oids", numOIDs,
			"duration", d,
		)
	}
}

// LogOIDListBuilt logs the construction of the visible OID set.
func (l *Logger) LogOIDListBuilt(ctx context.Context, state string, visible int, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "oid list build failed",
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "oid list built",
			"state", state,
			"visible", visible,
			"duration", d,
		)
	}
}

// LogTotalsScan logs a totals computation. mode is "direct", "scan" or
// "exact".
func (l *Logger) LogTotalsScan(ctx context.Context, mode string, seqs int, length uint64, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "totals scan failed",
			"mode", mode,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "totals computed",
			"mode", mode,
			"seqs", seqs,
			"length", length,
			"duration", d,
		)
	}
}

// LogRetry logs an open attempt retried with the other sequence type.
func (l *Logger) LogRetry(ctx context.Context, from, to SeqType, err error) {
	l.InfoContext(ctx, "retrying open with other sequence type",
		"from", from.String(),
		"to", to.String(),
		"cause", err,
	)
}

// LogClose logs closing a database.
func (l *Logger) LogClose(ctx context.Context, err error) {
	if err != nil {
		l.WarnContext(ctx, "close completed with errors",
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "database closed")
	}
}
