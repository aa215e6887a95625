package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitReady(t *testing.T) {
	calls := 0
	err := Wait(context.Background(), Config{Interval: time.Millisecond, MaxAttempts: 10}, func(ctx context.Context) (Outcome, error) {
		calls++
		if calls == 3 {
			return Ready, nil
		}
		return Pending, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWaitExhaustsAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Wait(context.Background(), Config{Interval: time.Millisecond, MaxAttempts: 5}, func(ctx context.Context) (Outcome, error) {
		calls++
		return Pending, nil
	})

	var exhausted *ErrExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 5, exhausted.Attempts)
	assert.Equal(t, 5, calls)
}

func TestWaitFailedStopsImmediately(t *testing.T) {
	calls := 0
	probeErr := errors.New("video rejected")
	err := Wait(context.Background(), Config{Interval: time.Millisecond, MaxAttempts: 10}, func(ctx context.Context) (Outcome, error) {
		calls++
		return Failed, probeErr
	})
	require.ErrorIs(t, err, probeErr)
	assert.Equal(t, 1, calls)
}

func TestWaitContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Wait(ctx, Config{Interval: time.Hour, MaxAttempts: 10}, func(ctx context.Context) (Outcome, error) {
		t.Fatal("probe should not run after cancellation")
		return Pending, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitDefaults(t *testing.T) {
	// Zero config still terminates: defaults are applied, Ready on first probe.
	err := Wait(context.Background(), Config{Interval: time.Millisecond}, func(ctx context.Context) (Outcome, error) {
		return Ready, nil
	})
	require.NoError(t, err)
}
