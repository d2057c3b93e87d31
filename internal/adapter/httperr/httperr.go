// Package httperr provides the shared error kinds for downstream HTTP
// adapters: transport faults, non-2xx statuses, body decode failures, and
// deadline expiry. Retries apply only to transport faults and transient
// gateway statuses.
package httperr

import (
	"context"
	"errors"
	"fmt"

	"github.com/isa-group/harvey/internal/domain"
)

// Kind classifies a downstream call failure.
type Kind int

const (
	KindTransport Kind = iota
	KindStatus
	KindDecode
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

// Error is a classified downstream failure. Code is set for KindStatus.
type Error struct {
	Kind Kind
	Code int
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("%s: http status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transport wraps a connection-level failure. Context cancellation is kept
// distinct so callers never retry a cancelled request.
func Transport(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, domain.ErrCancelled)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// Status wraps a non-2xx response.
func Status(op string, code int, body string) error {
	return &Error{Kind: KindStatus, Code: code, Op: op, Err: errors.New(truncate(body, 256))}
}

// Decode wraps a response-body decode failure.
func Decode(op string, err error) error {
	return &Error{Kind: KindDecode, Op: op, Err: err}
}

// Retryable reports whether err is a transport fault or a transient
// gateway status (502/503/504).
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	if e.Kind == KindTransport {
		return true
	}
	return e.Kind == KindStatus && (e.Code == 502 || e.Code == 503 || e.Code == 504)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
