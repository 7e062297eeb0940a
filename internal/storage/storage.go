package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jjudge-oj/judgeserver/config"
)

var (
	// ErrDisabled is returned by Open when no storage backend is configured.
	ErrDisabled = errors.New("object storage disabled")

	// ErrObjectNotFound is returned when a key does not exist in the bucket.
	ErrObjectNotFound = errors.New("object not found")
)

// BundleContentType is the content type of testcase bundles.
const BundleContentType = "application/gzip"

// checksumMetadataKey carries a bundle's SHA-256 in object metadata.
const checksumMetadataKey = "sha256"

// PutOptions describe an upload.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo is what a backend reports about a stored object.
type ObjectInfo struct {
	Size     int64
	Metadata map[string]string
}

// ObjectStorage defines common object operations across backends. Stat and
// Get return ErrObjectNotFound for missing keys.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Storage wraps an ObjectStorage backend with a stable API.
type Storage struct {
	backend ObjectStorage
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

// Open builds the backend selected by cfg.Backend. It returns ErrDisabled
// when the backend is "none" or empty.
func Open(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none":
		return nil, ErrDisabled
	case "minio":
		backend, err = NewMinioClient(cfg.Minio)
	case "gcs":
		backend, err = NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewStorage(backend), nil
}

// BundleKey returns the object key of a problem's testcase bundle. The
// content hash keeps re-imports from overwriting a bundle in use.
func BundleKey(problemID int, sha256 string) string {
	if len(sha256) > 12 {
		sha256 = sha256[:12]
	}
	return fmt.Sprintf("problems/%d/testcases-%s.tar.gz", problemID, sha256)
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put uploads an object to the configured bucket.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) error {
	return s.backend.Put(ctx, key, r, size, opts)
}

// PutBundle uploads a testcase bundle under key and records its checksum.
// Keys are content addressed, so an object already carrying the same
// checksum is left alone; uploaded reports whether bytes were sent.
func (s *Storage) PutBundle(ctx context.Context, key string, data []byte, sha256 string) (uploaded bool, err error) {
	info, err := s.backend.Stat(ctx, key)
	switch {
	case err == nil:
		if info.Size == int64(len(data)) && strings.EqualFold(metadataValue(info.Metadata, checksumMetadataKey), sha256) {
			return false, nil
		}
	case !errors.Is(err, ErrObjectNotFound):
		return false, fmt.Errorf("stat %s: %w", key, err)
	}

	opts := PutOptions{
		ContentType: BundleContentType,
		Metadata:    map[string]string{checksumMetadataKey: sha256},
	}
	if err := s.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return false, err
	}
	return true, nil
}

// Stat reports an object's size and metadata.
func (s *Storage) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	return s.backend.Stat(ctx, key)
}

// Get opens a reader for an object in the configured bucket.
func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, key)
}

// ReadAll downloads the object stored under key.
func (s *Storage) ReadAll(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Delete removes an object from the configured bucket.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// metadataValue looks key up case-insensitively. S3-compatible backends
// canonicalise user metadata keys.
func metadataValue(metadata map[string]string, key string) string {
	if v, ok := metadata[key]; ok {
		return v
	}
	for k, v := range metadata {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
