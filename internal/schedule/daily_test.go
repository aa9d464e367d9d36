package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaily_Next(t *testing.T) {
	d, err := NewDaily(6, 30, false, nil)
	require.NoError(t, err)

	cest := time.FixedZone("CEST", 2*60*60)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before today's run", time.Date(2024, 5, 3, 5, 0, 0, 0, time.UTC), time.Date(2024, 5, 3, 6, 30, 0, 0, time.UTC)},
		{"exactly at the run", time.Date(2024, 5, 3, 6, 30, 0, 0, time.UTC), time.Date(2024, 5, 4, 6, 30, 0, 0, time.UTC)},
		{"after today's run", time.Date(2024, 5, 3, 23, 59, 0, 0, time.UTC), time.Date(2024, 5, 4, 6, 30, 0, 0, time.UTC)},
		{"end of month", time.Date(2024, 5, 31, 7, 0, 0, 0, time.UTC), time.Date(2024, 6, 1, 6, 30, 0, 0, time.UTC)},
		{"non utc input before the run", time.Date(2024, 5, 3, 8, 0, 0, 0, cest), time.Date(2024, 5, 3, 6, 30, 0, 0, time.UTC)},
		{"non utc input after the run", time.Date(2024, 5, 3, 9, 0, 0, 0, cest), time.Date(2024, 5, 4, 6, 30, 0, 0, time.UTC)},
		{"non utc input on the next utc day", time.Date(2024, 5, 4, 1, 0, 0, 0, cest), time.Date(2024, 5, 4, 6, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Next(tt.now))
		})
	}
}

func TestNewDaily_InvalidTime(t *testing.T) {
	_, err := NewDaily(24, 0, false, nil)
	assert.Error(t, err)

	_, err = NewDaily(6, 60, false, nil)
	assert.Error(t, err)
}

func TestDaily_RunFiresAndSurvivesFailures(t *testing.T) {
	var calls atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := NewDaily(6, 0, true, func(context.Context) error {
		switch calls.Add(1) {
		case 1:
			return errors.New("resolve failed")
		case 2:
			panic("boom")
		default:
			cancel()

			return nil
		}
	})
	require.NoError(t, err)

	ticks := make(chan time.Time)
	close(ticks)
	d.after = func(time.Duration) <-chan time.Time { return ticks }

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestDaily_RunStopsOnCancel(t *testing.T) {
	var calls atomic.Int32

	d, err := NewDaily(6, 0, false, func(context.Context) error {
		calls.Add(1)

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, d.Run(ctx))
	assert.Zero(t, calls.Load())
}
