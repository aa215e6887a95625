// Package poll waits on remote asynchronous jobs with a bounded probe loop.
package poll

import (
	"context"
	"time"
)

type Outcome int

const (
	Pending Outcome = iota
	Ready
	Failed
)

type Config struct {
	Interval    time.Duration
	MaxAttempts int
}

// ErrExhausted is returned when every attempt came back Pending. It means
// "still processing", not "processing failed"; callers may retry later.
type ErrExhausted struct {
	Attempts int
}

func (e *ErrExhausted) Error() string {
	return "polling exhausted: job still pending"
}

// Probe checks the remote job once. Returning Failed or an error stops the
// loop immediately; the error accompanying Failed describes the remote
// failure.
type Probe func(ctx context.Context) (Outcome, error)

// Wait probes until Ready, Failed, attempt exhaustion, or context
// cancellation. The first probe runs after one interval, matching remote
// jobs that are never ready instantly.
func Wait(ctx context.Context, cfg Config, probe Probe) error {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 30
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		outcome, err := probe(ctx)
		if err != nil {
			return err
		}
		switch outcome {
		case Ready:
			return nil
		case Failed:
			// Probe returned Failed without an error; nothing more to report.
			return &RemoteFailure{}
		}
	}

	return &ErrExhausted{Attempts: maxAttempts}
}

// RemoteFailure marks a terminal remote-side failure with no detail.
type RemoteFailure struct{}

func (e *RemoteFailure) Error() string {
	return "remote processing failed"
}
