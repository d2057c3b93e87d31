package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/isa-group/harvey/internal/domain"
)

// BlobStore implements the blob store port on a pricing_blobs table.
// Append-once semantics come from the primary key: a second insert for the
// same id conflicts and is rejected.
type BlobStore struct {
	pool *pgxpool.Pool
}

// NewBlobStore wraps the pool as a blob store.
func NewBlobStore(pool *pgxpool.Pool) *BlobStore {
	return &BlobStore{pool: pool}
}

// Put inserts the artifact. An existing id fails with ErrConflict.
func (s *BlobStore) Put(ctx context.Context, id string, data []byte) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO pricing_blobs (id, content) VALUES ($1, $2)
		 ON CONFLICT (id) DO NOTHING`,
		id, data,
	)
	if err != nil {
		return fmt.Errorf("insert blob: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("blob %s: %w", id, domain.ErrConflict)
	}
	return nil
}

// Get reads the artifact bytes.
func (s *BlobStore) Get(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT content FROM pricing_blobs WHERE id = $1`, id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("blob %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("select blob: %w", err)
	}
	return data, nil
}

// Delete removes the artifact.
func (s *BlobStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pricing_blobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("blob %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
