package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/isa-group/harvey/internal/config"
	"github.com/isa-group/harvey/internal/domain"
	"github.com/isa-group/harvey/internal/port/blobstore"
)

// allowedMIMETypes is the upload allow-list. A missing content type falls
// back to sniffing nothing: plain text is accepted.
var allowedMIMETypes = map[string]bool{
	"application/yaml": true,
	"text/yaml":        true,
	"text/plain":       true,
}

// BlobService enforces upload policy over the blob store port: size cap,
// MIME allow-list, opaque id allocation.
type BlobService struct {
	store    blobstore.Store
	maxBytes int64
}

// NewBlobService wires the service.
func NewBlobService(store blobstore.Store, cfg config.Blob) *BlobService {
	return &BlobService{
		store:    store,
		maxBytes: cfg.MaxBytes,
	}
}

// Upload stores the YAML and returns its opaque id.
func (s *BlobService) Upload(ctx context.Context, contentType string, data []byte) (string, error) {
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: file exceeds %d bytes", domain.ErrValidation, s.maxBytes)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: file is empty", domain.ErrValidation)
	}
	if contentType != "" {
		mime := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
		if !allowedMIMETypes[mime] {
			return "", fmt.Errorf("%w: content type %q is not allowed", domain.ErrValidation, mime)
		}
	}

	id := uuid.NewString()
	if err := s.store.Put(ctx, id, data); err != nil {
		return "", err
	}
	return id, nil
}

// Get returns the stored bytes.
func (s *BlobService) Get(ctx context.Context, id string) ([]byte, error) {
	return s.store.Get(ctx, id)
}

// Delete removes the blob.
func (s *BlobService) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}
