// Package obslog wires zerolog as the process-wide structured logger and
// enriches per-request loggers with trace context.
package obslog

import (
	"context"
	"os"
	stdlog "log"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Init configures zerolog with the given level ("debug", "info", ...) and
// format ("json" or "console"). Unset level defaults to info.
func Init(level, format string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w = os.Stdout
	var writer zerolog.ConsoleWriter
	if strings.EqualFold(format, "console") {
		writer = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
		log.Logger = zerolog.New(writer).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	}

	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		if l, err := zerolog.ParseLevel(level); err == nil {
			lvl = l
		}
	}
	zerolog.SetGlobalLevel(lvl)

	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}

type ctxKey struct{}

// WithContext attaches a logger to ctx, to be retrieved with FromContext.
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, &l)
}

// FromContext returns the request-scoped logger, enriched with the active
// span's trace_id/span_id when one is present, falling back to the global
// logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	l := log.Logger
	if ctx != nil {
		if v, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok && v != nil {
			l = *v
		}
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			ctxLogger := l.With().Str("trace_id", sc.TraceID().String())
			if sc.HasSpanID() {
				ctxLogger = ctxLogger.Str("span_id", sc.SpanID().String())
			}
			l = ctxLogger.Logger()
		}
	}
	return &l
}
