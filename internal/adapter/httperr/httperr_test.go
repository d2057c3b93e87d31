package httperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/isa-group/harvey/internal/domain"
)

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", Transport("op", errors.New("connection refused")), true},
		{"502", Status("op", 502, "bad gateway"), true},
		{"503", Status("op", 503, "unavailable"), true},
		{"504", Status("op", 504, "timeout"), true},
		{"500", Status("op", 500, "boom"), false},
		{"404", Status("op", 404, "missing"), false},
		{"decode", Decode("op", errors.New("bad json")), false},
		{"plain error", errors.New("whatever"), false},
		{"wrapped transport", fmt.Errorf("outer: %w", Transport("op", errors.New("reset"))), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Retryable(tc.err); got != tc.want {
				t.Errorf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestTransportKeepsCancellationDistinct(t *testing.T) {
	err := Transport("op", context.Canceled)
	if !errors.Is(err, domain.ErrCancelled) {
		t.Errorf("cancellation should map to ErrCancelled, got %v", err)
	}
	if Retryable(err) {
		t.Error("cancellation must never be retried")
	}
}

func TestTransportMapsDeadlineToTimeout(t *testing.T) {
	err := Transport("op", context.DeadlineExceeded)
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindTimeout {
		t.Errorf("expected timeout kind, got %v", err)
	}
}

func TestStatusTruncatesBody(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	err := Status("op", 500, string(long))
	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("expected *Error")
	}
	if len(e.Err.Error()) > 300 {
		t.Errorf("body not truncated, %d bytes", len(e.Err.Error()))
	}
}
