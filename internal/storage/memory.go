package storage

import (
	"sync"
	"time"
)

// Memory is a session-scoped tier. Entries never expire; the whole map goes away
// with the value, the way session storage goes away with the tab.
type Memory struct {
	name string
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory creates an empty Memory tier.
func NewMemory(name string) *Memory {
	return &Memory{name: name, data: make(map[string]string)}
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Clear drops every entry.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]string)
}
