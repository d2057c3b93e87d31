// Package blobstore defines the port for append-once YAML artifact storage.
package blobstore

import "context"

// Store persists uploaded YAML artifacts keyed by opaque id. Put is
// append-once: writing an existing id fails with domain.ErrConflict.
// Get and Delete fail with domain.ErrNotFound for unknown ids.
type Store interface {
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}
