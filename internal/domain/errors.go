// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates invalid caller-supplied input.
var ErrValidation = errors.New("validation failed")

// ErrCancelled indicates the operation was cancelled by the caller.
// Adapters surface it distinctly so callers do not confuse cancellation
// with transport failure.
var ErrCancelled = errors.New("cancelled")

// ErrUpstream indicates a downstream service was unreachable after retries.
var ErrUpstream = errors.New("upstream unavailable")
