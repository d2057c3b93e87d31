package fsblob

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/isa-group/harvey/internal/domain"
)

func TestPutGetDeleteRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	content := []byte("saasName: Acme\ncurrency: USD\n")

	if err := store.Put(ctx, "blob-1", content); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "blob-1")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("read bytes differ from written bytes")
	}

	if err := store.Delete(ctx, "blob-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "blob-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestPutIsAppendOnce(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "blob-1", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "blob-1", []byte("v2")); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected conflict on second put, got %v", err)
	}

	got, _ := store.Get(ctx, "blob-1")
	if string(got) != "v1" {
		t.Errorf("original content should survive, got %q", got)
	}
}

func TestRejectsTraversalIDs(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, id := range []string{"../escape", "a/b", ".hidden", ""} {
		if err := store.Put(ctx, id, []byte("x")); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error for id %q, got %v", id, err)
		}
	}
}

func TestDeleteMissing(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(context.Background(), "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
