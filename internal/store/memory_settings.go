package store

import (
	"sync"
	"time"
)

// MemorySettingsStore implements SettingsStore using an in-memory map.
type MemorySettingsStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemorySettingsStore creates a new in-memory settings store.
func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{
		values: make(map[string]string),
	}
}

// Get retrieves a setting value.
func (m *MemorySettingsStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	return value, ok
}

// Set sets a setting value.
func (m *MemorySettingsStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

// Delete removes a setting.
func (m *MemorySettingsStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

// GetTime retrieves a timestamp setting.
func (m *MemorySettingsStore) GetTime(key string) (time.Time, bool) {
	return parseTime(m.Get(key))
}

// SetTime stores a timestamp setting.
func (m *MemorySettingsStore) SetTime(key string, value time.Time) error {
	return m.Set(key, value.UTC().Format(time.RFC3339Nano))
}

// Len returns the number of stored keys.
func (m *MemorySettingsStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

var _ SettingsStore = (*MemorySettingsStore)(nil)
