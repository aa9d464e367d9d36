package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attributes feed metric series, keep them bounded: operation names, status values and
// component names only. Picture URLs, file names and cycle IDs belong in logs.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation instruments a generic operation with telemetry.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)
	duration := time.Since(start)

	status := statusOf(err)
	if err != nil {
		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", duration.Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)

	t.RecordDBOperation(operation, statusOf(err), time.Since(start))

	return err
}

// InstrumentCycle instruments one full cycle.
func (t *Telemetry) InstrumentCycle(ctx context.Context, trigger string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()

	if t.cyclesActive != nil {
		t.cyclesActive.Add(ctx, 1)
		defer t.cyclesActive.Add(ctx, -1)
	}

	err := t.InstrumentOperation(ctx, "cycle", "cycle", func(ctx context.Context) error {
		// trigger is one of a fixed set: schedule, manual, cli
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("cycle.trigger", trigger))

		return fn(ctx)
	})

	t.RecordCycle(trigger, statusOf(err), time.Since(start))

	return err
}

// InstrumentResolve instruments the metadata lookup.
func (t *Telemetry) InstrumentResolve(ctx context.Context, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	err := t.InstrumentOperation(ctx, "resolve", "resolver", fn)

	t.RecordResolve(statusOf(err))

	return err
}

// InstrumentDownload instruments download operations.
func (t *Telemetry) InstrumentDownload(ctx context.Context, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "download", "downloader", fn)

	t.RecordDownload(statusOf(err), time.Since(start))

	return err
}

// InstrumentRotation instruments an archive rotation.
func (t *Telemetry) InstrumentRotation(ctx context.Context, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	return t.InstrumentOperation(ctx, "rotate", "archive", fn)
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}
