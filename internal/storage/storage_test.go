package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestPutBundleSkipsIdenticalObject(t *testing.T) {
	mem := NewMemoryStorage("test")
	s := NewStorage(mem)
	ctx := context.Background()
	key := BundleKey(3, "abcdef0123456789")
	data := []byte("bundle-bytes")

	uploaded, err := s.PutBundle(ctx, key, data, "abcdef0123456789")
	if err != nil || !uploaded {
		t.Fatalf("first PutBundle: uploaded=%v err=%v", uploaded, err)
	}
	uploaded, err = s.PutBundle(ctx, key, data, "ABCDEF0123456789")
	if err != nil || uploaded {
		t.Fatalf("second PutBundle: uploaded=%v err=%v", uploaded, err)
	}
	if mem.Puts() != 1 {
		t.Fatalf("expected a single upload, got %d", mem.Puts())
	}

	info, err := s.Stat(ctx, key)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != int64(len(data)) || info.Metadata[checksumMetadataKey] != "abcdef0123456789" {
		t.Fatalf("unexpected object info %+v", info)
	}
}

func TestPutBundleOverwritesMismatchedChecksum(t *testing.T) {
	mem := NewMemoryStorage("test")
	s := NewStorage(mem)
	ctx := context.Background()
	key := "problems/1/testcases-x.tar.gz"

	if err := s.Put(ctx, key, bytes.NewReader([]byte("stale")), 5, PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	uploaded, err := s.PutBundle(ctx, key, []byte("fresh"), "feed")
	if err != nil || !uploaded {
		t.Fatalf("PutBundle: uploaded=%v err=%v", uploaded, err)
	}
	got, err := s.ReadAll(ctx, key)
	if err != nil || string(got) != "fresh" {
		t.Fatalf("ReadAll: %q %v", got, err)
	}
}

func TestMissingObject(t *testing.T) {
	s := NewStorage(NewMemoryStorage("test"))
	ctx := context.Background()

	if _, err := s.Stat(ctx, "nope"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("Stat: expected ErrObjectNotFound, got %v", err)
	}
	if _, err := s.ReadAll(ctx, "nope"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("ReadAll: expected ErrObjectNotFound, got %v", err)
	}
}

func TestMetadataValueIgnoresCase(t *testing.T) {
	md := map[string]string{"Sha256": "abc"}
	if got := metadataValue(md, "sha256"); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	if got := metadataValue(nil, "sha256"); got != "" {
		t.Fatalf("expected empty value, got %q", got)
	}
}

func TestBundleKeyTruncatesHash(t *testing.T) {
	if got := BundleKey(42, "0123456789abcdef"); got != "problems/42/testcases-0123456789ab.tar.gz" {
		t.Fatalf("unexpected key %q", got)
	}
}
