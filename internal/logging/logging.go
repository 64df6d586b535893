// Package logging wraps slog with the field names used across ash.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with ash-specific helpers.
type Logger struct {
	*slog.Logger
}

// ParseLevel maps a config string onto a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New creates a Logger writing to w in the given format ("json" or "text").
func New(w io.Writer, format string, level slog.Level) *Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewStderr creates a Logger on stderr from config strings.
func NewStderr(format, level string) *Logger {
	return New(os.Stderr, format, ParseLevel(level))
}

// NoopLogger discards all output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithWorker tags records with a detector worker id.
func (l *Logger) WithWorker(id int) *Logger {
	return &Logger{Logger: l.Logger.With("worker", id)}
}

// LogEncode logs the outcome of one encode.
func (l *Logger) LogEncode(ctx context.Context, source, failure string) {
	if failure != "" && failure != "none" {
		l.WarnContext(ctx, "encode produced no fingerprint",
			"source", source,
			"failure", failure,
		)
		return
	}
	l.DebugContext(ctx, "encode completed", "source", source)
}

// LogCompare logs a comparison and how it was decided.
func (l *Logger) LogCompare(ctx context.Context, score float32, reason string) {
	l.DebugContext(ctx, "compare completed",
		"score", score,
		"reason", reason,
	)
}

// LogIdentify logs an identification lookup.
func (l *Logger) LogIdentify(ctx context.Context, matchID int, score float32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "identify failed", "error", err)
		return
	}
	l.InfoContext(ctx, "identify completed",
		"match_id", matchID,
		"score", score,
	)
}
