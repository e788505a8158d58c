package testutil

import (
	"context"
	"sync"

	"mac-bootstrap/internal/prefs"
)

// MemoryStore is an in-memory prefs.Store.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
	writes int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get implements prefs.Store.
func (m *MemoryStore) Get(_ context.Context, domain, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[domain+"\x00"+key]
	return v, ok, nil
}

// Set implements prefs.Store.
func (m *MemoryStore) Set(_ context.Context, domain, key string, v prefs.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[domain+"\x00"+key] = v.Data
	m.writes++
	return nil
}

// Writes counts Set calls.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

var _ prefs.Store = (*MemoryStore)(nil)
