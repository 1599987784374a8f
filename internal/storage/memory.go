package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
	storedAt    time.Time
}

// MemoryStore is an in-memory BlobStore for tests and storage-less runs.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (m *MemoryStore) Put(_ context.Context, key string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, contentType: contentType, storedAt: time.Now()}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return Blob{}, ErrObjectNotFound
	}
	return Blob{
		Body:        io.NopCloser(bytes.NewReader(obj.data)),
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
	}, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	objects := make([]Object, 0, len(m.objects))
	for key, obj := range m.objects {
		objects = append(objects, Object{Key: key, LastModified: obj.storedAt})
	}
	return objects, nil
}

// SetStoredAt backdates an object so retention sweeps can be exercised.
func (m *MemoryStore) SetStoredAt(key string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obj, ok := m.objects[key]; ok {
		obj.storedAt = at
		m.objects[key] = obj
	}
}

var _ BlobStore = (*MemoryStore)(nil)
