package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// MemoryBackend keeps bytes in process memory. Used in tests and on hosts
// without a writable filesystem.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string]memoryEntry
}

type memoryEntry struct {
	data    []byte
	modTime time.Time
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string]memoryEntry)}
}

// Save buffers the whole reader
func (m *MemoryBackend) Save(_ context.Context, name string, r io.Reader, _ int64, _ string) (int64, error) {
	if err := ValidateName(name); err != nil {
		return 0, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("failed to buffer %s: %w", name, err)
	}

	m.mu.Lock()
	m.objects[name] = memoryEntry{data: data, modTime: time.Now()}
	m.mu.Unlock()
	return int64(len(data)), nil
}

// Open returns a reader over the stored bytes
func (m *MemoryBackend) Open(_ context.Context, name string) (Object, error) {
	m.mu.RLock()
	entry, ok := m.objects[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return &memoryObject{Reader: bytes.NewReader(entry.data), entry: entry}, nil
}

// Remove drops the stored bytes
func (m *MemoryBackend) Remove(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[name]; !ok {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	delete(m.objects, name)
	return nil
}

// Exists reports whether bytes are stored under name
func (m *MemoryBackend) Exists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[name]
	return ok, nil
}

// Len returns the number of stored objects
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

type memoryObject struct {
	*bytes.Reader
	entry memoryEntry
}

func (o *memoryObject) Close() error       { return nil }
func (o *memoryObject) Size() int64        { return int64(len(o.entry.data)) }
func (o *memoryObject) ModTime() time.Time { return o.entry.modTime }
