package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "failed to parse JSON log output")

	return entry
}

func TestNew_NoSpanContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo)

	logger.InfoContext(context.Background(), "picture downloaded", "file", "2024-5-3.png")

	entry := decodeRecord(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
	assert.Equal(t, "picture downloaded", entry["msg"])
	assert.Equal(t, "2024-5-3.png", entry["file"])
}

func TestNew_AddsSpanIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo)

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	logger.InfoContext(ctx, "cycle started")

	entry := decodeRecord(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestNew_ErrorsBecomeSpanEvents(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, slog.LevelDebug))
	ctx = With(ctx, "cycle_id", "c-1")

	ctx, span := tp.Tracer("test").Start(ctx, "cycle")
	LoggerFromContext(ctx).InfoContext(ctx, "resolving picture url")
	LoggerFromContext(ctx).ErrorContext(ctx, "cycle failed", "err", errors.New("metadata has no url"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)

	events := spans[0].Events()
	require.Len(t, events, 1, "only ERROR records are added to the span")
	assert.Equal(t, "cycle failed", events[0].Name)
	assert.Contains(t, events[0].Attributes, attribute.String("error", "metadata has no url"))
	assert.Contains(t, events[0].Attributes, attribute.String("log.severity", "ERROR"))
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn)

	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelError))

	logger.Info("skipped")
	assert.Empty(t, buf.String())
}

func TestNew_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo).With("component", "rotator").WithGroup("archive")

	logger.Info("moved", "files", 2)

	entry := decodeRecord(t, &buf)
	assert.Equal(t, "rotator", entry["component"])
	assert.Equal(t, map[string]any{"files": float64(2)}, entry["archive"])
}

func TestWith_AddsAttributesToContextLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx = With(ctx, "cycle_id", "abc")
	LoggerFromContext(ctx).Info("hello")

	entry := decodeRecord(t, &buf)
	assert.Equal(t, "abc", entry["cycle_id"])
}

func TestLoggerFromContext_Default(t *testing.T) {
	assert.Equal(t, slog.Default(), LoggerFromContext(context.Background()))
}
