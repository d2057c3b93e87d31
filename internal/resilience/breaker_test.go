package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("service unavailable")

func TestClosedStateAllowsCalls(t *testing.T) {
	b := NewBreaker(3, time.Second)
	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}

func TestOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Second)

	for range 3 {
		_ = b.Execute(func() error { return errTest })
	}

	err := b.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if b.State() != "open" {
		t.Errorf("expected open state, got %s", b.State())
	}
}

func TestHalfOpenAfterTimeoutThenCloses(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	for range 2 {
		_ = b.Execute(func() error { return errTest })
	}

	// Still open before the timeout.
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	now = now.Add(2 * time.Second)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected half-open call to pass, got %v", err)
	}
	if b.State() != "closed" {
		t.Errorf("expected closed after success, got %s", b.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	for range 2 {
		_ = b.Execute(func() error { return errTest })
	}
	now = now.Add(2 * time.Second)

	_ = b.Execute(func() error { return errTest })
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected reopened circuit, got %v", err)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Initial: time.Millisecond, Cap: time.Millisecond}
	p.sleep = func(context.Context, time.Duration) error { return nil }

	calls := 0
	err := p.Retry(context.Background(), func(error) bool { return false }, func() error {
		calls++
		return errTest
	})
	if !errors.Is(err, errTest) {
		t.Fatalf("expected errTest, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Initial: time.Millisecond, Cap: time.Millisecond}
	p.sleep = func(context.Context, time.Duration) error { return nil }

	calls := 0
	err := p.Retry(context.Background(), func(error) bool { return true }, func() error {
		calls++
		return errTest
	})
	if !errors.Is(err, errTest) {
		t.Fatalf("expected errTest, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetrySucceedsMidway(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Initial: time.Millisecond, Cap: time.Millisecond}
	p.sleep = func(context.Context, time.Duration) error { return nil }

	calls := 0
	err := p.Retry(context.Background(), func(error) bool { return true }, func() error {
		calls++
		if calls < 2 {
			return errTest
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, Initial: time.Millisecond, Cap: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := p.Retry(ctx, func(error) bool { return true }, func() error {
		calls++
		return errTest
	})
	if !errors.Is(err, errTest) {
		t.Fatalf("expected the last error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation stop, got %d", calls)
	}
}

func TestJitterStaysWithinBounds(t *testing.T) {
	d := 100 * time.Millisecond
	for range 50 {
		j := Jitter(d, 0.2)
		if j < 80*time.Millisecond || j > 120*time.Millisecond {
			t.Fatalf("jitter %v outside ±20%% of %v", j, d)
		}
	}
}
