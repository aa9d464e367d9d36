// Package logctx carries the process logger through context.Context and correlates log
// records with the OpenTelemetry span of the cycle or request that produced them.
package logctx

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type loggerKey struct{}

// New returns a JSON logger writing to w. Records logged with a span in their context
// carry its trace_id and span_id, and records at ERROR or above are also added to the
// span as events, so a failed cycle shows its cause in the trace.
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(&spanHandler{next: slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})})
}

// WithLogger returns a new context with the provided slog.Logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// With returns a context whose logger carries the given attributes, e.g. a cycle or
// request ID that every later record should show.
func With(ctx context.Context, args ...any) context.Context {
	return WithLogger(ctx, LoggerFromContext(ctx).With(args...))
}

// LoggerFromContext retrieves the slog.Logger from the context, or returns slog.Default() if not found.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}

	return slog.Default()
}

type spanHandler struct {
	next slog.Handler
}

func (h *spanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *spanHandler) Handle(ctx context.Context, r slog.Record) error {
	span := trace.SpanFromContext(ctx)

	sc := span.SpanContext()
	if !sc.IsValid() {
		return h.next.Handle(ctx, r)
	}

	if r.Level >= slog.LevelError && span.IsRecording() {
		span.AddEvent(r.Message, trace.WithAttributes(eventAttrs(r)...))
	}

	r.AddAttrs(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)

	return h.next.Handle(ctx, r)
}

func (h *spanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &spanHandler{next: h.next.WithAttrs(attrs)}
}

func (h *spanHandler) WithGroup(name string) slog.Handler {
	return &spanHandler{next: h.next.WithGroup(name)}
}

// eventAttrs flattens the record attributes into span event attributes.
// The "err" attribute becomes "error" to match the semantic convention.
func eventAttrs(r slog.Record) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("log.severity", r.Level.String())}

	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if key == "err" {
			key = "error"
		}

		attrs = append(attrs, attribute.String(key, a.Value.Resolve().String()))

		return true
	})

	return attrs
}
