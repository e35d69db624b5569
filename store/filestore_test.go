package store_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"trendgallery/store"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ds, err := store.NewDiskStore(dir)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	ctx := context.Background()

	data := []byte("jpeg bytes")
	if err := ds.Put(ctx, "p1_main_0001.jpg", data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ok, err := ds.Has(ctx, "p1_main_0001.jpg")
	if err != nil || !ok {
		t.Fatalf("Has after Put: ok=%v err=%v", ok, err)
	}

	got, err := ds.Get(ctx, "p1_main_0001.jpg")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Get returned different bytes: %q", got)
	}

	if err := ds.Delete(ctx, "p1_main_0001.jpg"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := ds.Has(ctx, "p1_main_0001.jpg"); ok {
		t.Fatal("Has after Delete should be false")
	}
}

func TestDiskStoreGetMissing(t *testing.T) {
	ds, err := store.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	if _, err := ds.Get(context.Background(), "nope.jpg"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDiskStoreStripsPathComponents(t *testing.T) {
	dir := t.TempDir()
	ds, err := store.NewDiskStore(dir)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	ctx := context.Background()

	// Only the base name is used; a traversal attempt lands inside root.
	if err := ds.Put(ctx, "../escape.jpg", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, _ := ds.Has(ctx, "escape.jpg"); !ok {
		t.Fatal("expected file stored under its base name")
	}
}
