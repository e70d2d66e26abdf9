package kv

import (
	"strings"
	"sync"
)

// MemoryStore is a map-backed Store. Nothing survives a restart; it exists
// for tests and for running without persistent storage, where the reader
// simply starts with no feeds.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// DatabaseType returns the storage backend name.
func (m *MemoryStore) DatabaseType() string {
	return "Memory"
}

// Get returns the value for key.
func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.entries[key]
	return val, ok, nil
}

// Set stores value under key.
func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

// Delete removes key.
func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// List returns all entries whose key starts with prefix.
func (m *MemoryStore) List(prefix string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make(map[string]string)
	for k, v := range m.entries {
		if strings.HasPrefix(k, prefix) {
			entries[k] = v
		}
	}
	return entries, nil
}
