package persist

import (
	"context"
	"sync"
)

// Compile-time assertion: *MemStore satisfies Persister.
var _ Persister = (*MemStore)(nil)

// MemStore keeps the state in memory. Thread-safe via sync.RWMutex.
type MemStore struct {
	mu    sync.RWMutex
	state State
	saves int
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Load returns a copy of the last saved state.
func (m *MemStore) Load(_ context.Context) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneState(m.state), nil
}

// Save stores a copy of st.
func (m *MemStore) Save(_ context.Context, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = cloneState(st)
	m.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (m *MemStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
