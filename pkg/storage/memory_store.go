package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryBlobStore keeps objects in-process for tests and dev mode.
type MemoryBlobStore struct {
	mu      sync.RWMutex
	objects map[string][]byte // "bucket/path" -> bytes
}

// NewMemoryBlobStore initializes an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{objects: make(map[string][]byte)}
}

// Upload stores the object bytes, overwriting on conflict.
func (m *MemoryBlobStore) Upload(_ context.Context, bucket, path string, r io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}
	key := bucket + "/" + path
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return "memory://" + key, nil
}

// Delete removes an object; deleting a missing object is a no-op.
func (m *MemoryBlobStore) Delete(_ context.Context, bucket, path string) error {
	m.mu.Lock()
	delete(m.objects, bucket+"/"+path)
	m.mu.Unlock()
	return nil
}

// Get returns stored object bytes, for test assertions.
func (m *MemoryBlobStore) Get(bucket, path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[bucket+"/"+path]
	return data, ok
}

// Len returns the number of stored objects.
func (m *MemoryBlobStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
