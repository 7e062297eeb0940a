package storage

import (
	"bytes"
	"context"
	"io"
	"maps"
	"sync"
)

// MemoryStorage keeps objects in process memory. It backs tests and
// single-process development runs.
type MemoryStorage struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memoryObject
	puts    int
}

type memoryObject struct {
	data     []byte
	metadata map[string]string
}

// NewMemoryStorage returns an empty in-memory bucket.
func NewMemoryStorage(bucket string) *MemoryStorage {
	return &MemoryStorage{bucket: bucket, objects: make(map[string]memoryObject)}
}

func (m *MemoryStorage) EnsureBucket(ctx context.Context) error {
	return nil
}

func (m *MemoryStorage) Put(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, metadata: maps.Clone(opts.Metadata)}
	m.puts++
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MemoryStorage) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return ObjectInfo{}, ErrObjectNotFound
	}
	return ObjectInfo{Size: int64(len(obj.data)), Metadata: maps.Clone(obj.metadata)}, nil
}

func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Bucket() string {
	return m.bucket
}

// Puts reports how many uploads the bucket has accepted.
func (m *MemoryStorage) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

// Len reports how many objects are stored.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
