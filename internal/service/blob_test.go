package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/isa-group/harvey/internal/adapter/fsblob"
	"github.com/isa-group/harvey/internal/config"
	"github.com/isa-group/harvey/internal/domain"
)

func newTestBlobService(t *testing.T, maxBytes int64) *BlobService {
	t.Helper()
	store, err := fsblob.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewBlobService(store, config.Blob{MaxBytes: maxBytes})
}

func TestUploadReadDeleteRoundTrip(t *testing.T) {
	svc := newTestBlobService(t, 1<<20)
	ctx := context.Background()
	content := []byte("saasName: Acme\n")

	id, err := svc.Upload(ctx, "application/yaml", content)
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Error("uploaded and read bytes differ")
	}

	if err := svc.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestUploadEnforcesSizeCap(t *testing.T) {
	svc := newTestBlobService(t, 16)
	_, err := svc.Upload(context.Background(), "text/yaml", bytes.Repeat([]byte("a"), 17))
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestUploadEnforcesMIMEAllowList(t *testing.T) {
	svc := newTestBlobService(t, 1<<20)
	ctx := context.Background()

	for _, ct := range []string{"application/yaml", "text/yaml", "text/plain", "application/yaml; charset=utf-8"} {
		if _, err := svc.Upload(ctx, ct, []byte("x: 1")); err != nil {
			t.Errorf("content type %q should be allowed: %v", ct, err)
		}
	}
	for _, ct := range []string{"application/json", "image/png", "application/octet-stream"} {
		if _, err := svc.Upload(ctx, ct, []byte("x: 1")); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("content type %q should be rejected", ct)
		}
	}
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	svc := newTestBlobService(t, 1<<20)
	if _, err := svc.Upload(context.Background(), "text/yaml", nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for empty upload, got %v", err)
	}
}
