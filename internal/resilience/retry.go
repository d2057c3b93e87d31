package resilience

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls the Retry helper: up to MaxAttempts calls with
// exponential backoff starting at Initial, capped at Cap, with ±20% jitter.
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Cap         time.Duration

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy matches the downstream adapter contract: 3 attempts
// with jittered backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Initial:     250 * time.Millisecond,
		Cap:         5 * time.Second,
	}
}

// Retry runs fn until it succeeds, the retryable predicate rejects the
// error, attempts are exhausted, or ctx is cancelled. The last error is
// returned unwrapped so callers keep their typed error kinds.
func (p RetryPolicy) Retry(ctx context.Context, retryable func(error) bool, fn func() error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	delay := p.Initial
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt >= p.MaxAttempts || !retryable(err) {
			return err
		}
		if sleepErr := sleep(ctx, Jitter(delay, 0.2)); sleepErr != nil {
			return err
		}
		delay *= 2
		if delay > p.Cap {
			delay = p.Cap
		}
	}
}

// Jitter spreads d by ±fraction to avoid synchronized retries.
func Jitter(d time.Duration, fraction float64) time.Duration {
	if d <= 0 {
		return d
	}
	spread := float64(d) * fraction
	return time.Duration(float64(d) - spread + rand.Float64()*2*spread)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
