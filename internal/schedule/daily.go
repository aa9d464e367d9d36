// Package schedule triggers a job once per day at a fixed UTC time.
package schedule

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/italolelis/potd_downloader/internal/logctx"
)

// Job is the work run on every tick. Its error is logged, never fatal.
type Job func(ctx context.Context) error

type Daily struct {
	hour, minute int
	runOnStart   bool
	job          Job

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func NewDaily(hour, minute int, runOnStart bool, job Job) (*Daily, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("invalid daily schedule %02d:%02d", hour, minute)
	}

	return &Daily{
		hour:       hour,
		minute:     minute,
		runOnStart: runOnStart,
		job:        job,
		now:        func() time.Time { return time.Now().UTC() },
		after:      time.After,
	}, nil
}

// Next returns the first run strictly after now.
func (d *Daily) Next(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), d.hour, d.minute, 0, 0, time.UTC)

	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}

	return next
}

// Run blocks until ctx is cancelled, running the job at every scheduled time.
func (d *Daily) Run(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	if d.runOnStart {
		d.runJob(ctx)
	}

	for {
		next := d.Next(d.now())

		logger.InfoContext(ctx, "next cycle scheduled", "at", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "scheduler shutdown", "reason", "context_cancelled")

			return nil
		case <-d.after(next.Sub(d.now())):
			d.runJob(ctx)
		}
	}
}

// runJob recovers from panics so a broken cycle never stops the scheduler.
func (d *Daily) runJob(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "scheduled job panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	if err := d.job(ctx); err != nil {
		logger.ErrorContext(ctx, "scheduled job failed", "err", err)
	}
}
