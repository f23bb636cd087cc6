package orchestrator

import (
	"context"
	"time"
)

// BackoffPolicy bounds the orchestrator's retries of transient failures
// (spec §7 "Transient I/O"): capped attempts, default 3, exponential wait
// capped at MaxWait (default 8s).
type BackoffPolicy struct {
	MaxAttempts int
	BaseWait    time.Duration
	MaxWait     time.Duration
}

// DefaultBackoffPolicy matches the spec's stated defaults exactly.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts: 3,
		BaseWait:    500 * time.Millisecond,
		MaxWait:     8 * time.Second,
	}
}

// wait returns the delay before attempt n (1-indexed: the delay before the
// 2nd attempt, 3rd attempt, ...). attempt 1 has no preceding delay.
func (p BackoffPolicy) wait(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := p.BaseWait
	for i := 1; i < attempt-1; i++ {
		d *= 2
		if d >= p.MaxWait {
			return p.MaxWait
		}
	}
	if d > p.MaxWait {
		d = p.MaxWait
	}
	return d
}

// retry calls fn up to p.MaxAttempts times, sleeping p.wait between
// attempts, stopping early on ctx cancellation or a nil error. Returns the
// last error if every attempt failed.
func (p BackoffPolicy) retry(ctx context.Context, fn func(attempt int) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if d := p.wait(attempt); d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := fn(attempt); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
