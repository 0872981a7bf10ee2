package session

import (
	"sync"

	"comply/internal/model"
)

// MemoryStore keeps session records in a map. Safe for concurrent use; the
// Tracker additionally serializes per-key read-modify-write cycles.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
}

// NewMemoryStore returns an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]model.Session)}
}

func (m *MemoryStore) Get(key string) (model.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	return s, ok, nil
}

func (m *MemoryStore) Put(key string, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[key] = s
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}
