// Package kvstore provides the synchronous key-value backends behind the token
// store: process memory, a locked JSON file, SQLite, the OS keyring and Redis.
// Every backend reports a missing key as ok == false, never as an error.
package kvstore

import "sync"

// Memory keeps keys in process memory. Nothing survives a restart.
type Memory struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{keys: make(map[string]string)}
}

// ReadKey returns the value stored under name.
func (m *Memory) ReadKey(name string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.keys[name]

	return v, ok, nil
}

// WriteKey stores value under name.
func (m *Memory) WriteKey(name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.keys[name] = value

	return nil
}

// DeleteKey removes name. Missing keys are not an error.
func (m *Memory) DeleteKey(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.keys, name)

	return nil
}
