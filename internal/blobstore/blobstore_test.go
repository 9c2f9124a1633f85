package blobstore

import (
	"path/filepath"
	"testing"
)

func TestPutGetHasRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir(), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	hash := "deadbeef"
	if ok, err := store.Has(hash); err != nil || ok {
		t.Fatalf("Has before Put = (%v, %v), want (false, nil)", ok, err)
	}
	if err := store.Put(hash, []byte("payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, err := store.Has(hash); err != nil || !ok {
		t.Fatalf("Has after Put = (%v, %v), want (true, nil)", ok, err)
	}
	data, ok, err := store.Get(hash)
	if err != nil || !ok {
		t.Fatalf("Get = (%v, %v, %v), want (data, true, nil)", data, ok, err)
	}
	if string(data) != "payload" {
		t.Errorf("Get = %q, want %q", data, "payload")
	}
}

func TestPutSameHashSameBytesIsNoop(t *testing.T) {
	store, err := Open(t.TempDir(), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.Put("h", []byte("a")); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := store.Put("h", []byte("a")); err != nil {
		t.Fatalf("second identical Put: %v", err)
	}
}

func TestPutSameHashDifferentBytesErrors(t *testing.T) {
	store, err := Open(t.TempDir(), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.Put("h", []byte("a")); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := store.Put("h", []byte("b")); err == nil {
		t.Errorf("Put with mismatched content for existing hash succeeded, want error")
	}
}

func TestGetAbsentReturnsNotFound(t *testing.T) {
	store, err := Open(t.TempDir(), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	data, ok, err := store.Get("missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok || data != nil {
		t.Errorf("Get of absent hash = (%v, %v), want (nil, false)", data, ok)
	}
}

func TestSizeFallsBackToStat(t *testing.T) {
	store, err := Open(t.TempDir(), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.Put("h", []byte("12345")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	size, err := store.Size("h")
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 5 {
		t.Errorf("Size = %d, want 5", size)
	}
}

func TestSizeIndexAccelerates(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "blobs"), filepath.Join(dir, "sizes.ldb"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.Put("h", []byte("abcdefgh")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	size, err := store.Size("h")
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 8 {
		t.Errorf("Size = %d, want 8", size)
	}
}
