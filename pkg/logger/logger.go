// Package logger configures the process-wide slog logger and carries
// request- or run-scoped attributes through contexts.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type attrsKey struct{}

// Setup installs a stdout logger for service at level, in "json" or "text"
// format.
func Setup(service, level, format string) {
	SetupWriter(os.Stdout, service, level, format)
}

// SetupWriter is Setup with an explicit destination. Debug level also records
// the call site.
func SetupWriter(w io.Writer, service, level, format string) {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Value = slog.TimeValue(a.Value.Time().UTC())
			}
			return a
		},
	}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	l := slog.New(handler)
	if service != "" {
		l = l.With("service", service)
	}
	slog.SetDefault(l)
}

// With returns ctx carrying args in addition to any attributes already
// stored. FromContext adds them to every logger it returns.
func With(ctx context.Context, args ...any) context.Context {
	prev, _ := ctx.Value(attrsKey{}).([]any)
	merged := make([]any, 0, len(prev)+len(args))
	merged = append(merged, prev...)
	merged = append(merged, args...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

// WithRequestID stores the request ID for FromContext.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return With(ctx, "request_id", requestID)
}

// FromContext returns the default logger with the attributes stored in ctx.
func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if args, ok := ctx.Value(attrsKey{}).([]any); ok && len(args) > 0 {
		l = l.With(args...)
	}
	return l
}

// ParseLevel maps a config level name to a slog level; unknown names are
// info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
