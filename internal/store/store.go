package store

import "sync"

// Store is the key-value persistence capability the session controller
// depends on. It is an injected collaborator so the controller stays
// testable with an in-memory stub. The stored markers are advisory,
// never authoritative.
type Store interface {
	Get(key string) (string, bool)
	Set(key string, value string) error
	Remove(key string) error
}

// Memory is an in-process Store for tests and ephemeral runs
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
