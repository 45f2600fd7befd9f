package framesource

import (
	"context"
	"time"
)

// BackoffPolicy bounds reconnection: delays grow exponentially from
// BaseDelay up to MaxDelay, and at most MaxAttempts attempts are made.
// Sleep is injectable so tests can run against a fake clock.
type BackoffPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	Sleep       func(ctx context.Context, d time.Duration) error
}

// DefaultBackoff returns the operational defaults: 1s base, 30s cap,
// 5 attempts.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns the wait before the given 1-based attempt.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// wait sleeps for the attempt's delay, honoring cancellation.
func (p BackoffPolicy) wait(ctx context.Context, attempt int) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = ctxSleep
	}
	return sleep(ctx, p.Delay(attempt))
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
