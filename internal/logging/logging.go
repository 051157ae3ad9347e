// Package logging builds the process-wide [log/slog] logger and carries it
// through request contexts.
//
// Environment variables:
//
//	LOG_LEVEL  = debug | info | warn | error  (default: info)
//	LOG_FORMAT = json | text                  (default: json)
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey struct{}

// Options controls logger construction. Zero values fall back to LOG_LEVEL,
// LOG_FORMAT and stderr.
type Options struct {
	// Level overrides LOG_LEVEL when non-empty.
	Level string
	// Format overrides LOG_FORMAT when non-empty.
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New constructs a logger from the environment.
func New() *slog.Logger {
	return NewWithOptions(Options{})
}

// NewWithOptions constructs a logger, letting explicit options (typically CLI
// flags) win over the environment.
func NewWithOptions(o Options) *slog.Logger {
	level := o.Level
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	format := o.Format
	if format == "" {
		format = os.Getenv("LOG_FORMAT")
	}
	out := o.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in ctx, or [slog.Default].
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// With returns ctx carrying the context logger extended with args, along
// with that logger.
func With(ctx context.Context, args ...any) (context.Context, *slog.Logger) {
	l := FromContext(ctx).With(args...)
	return WithLogger(ctx, l), l
}

func parseLevel(s string) slog.Level {
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
