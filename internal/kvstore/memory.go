package kvstore

import (
	"context"
	"sync"
)

// Memory is an in-process Store with an optional total byte quota.
type Memory struct {
	mu       sync.RWMutex
	data     map[string][]byte
	used     int
	maxBytes int
	closed   bool
}

// NewMemory creates a memory store. maxBytes <= 0 disables the quota.
func NewMemory(maxBytes int) *Memory {
	return &Memory{
		data:     make(map[string][]byte),
		maxBytes: maxBytes,
	}
}

// Load implements Store.
func (m *Memory) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Save implements Store.
func (m *Memory) Save(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.used - len(m.data[key]) + len(value)
	if m.maxBytes > 0 && used > m.maxBytes {
		return ErrCapacityExceeded
	}

	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	m.used = used
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.used -= len(m.data[key])
	delete(m.data, key)
	return nil
}

// Used returns the number of bytes currently stored.
func (m *Memory) Used() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
