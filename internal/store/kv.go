// Package store persists chat sessions, the session index and backend
// credentials on top of a small key-value interface.
package store

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by KV.Get for absent keys.
var ErrNotFound = errors.New("key not found")

// KV is the storage the session store is written against. Implementations
// must be safe for concurrent use.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	// Delete removes key; deleting an absent key is not an error.
	Delete(key string) error
	Close() error
}

// Error describes a failed storage operation.
type Error struct {
	Op  string // "get", "put", "remove", "index"
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// MemoryKV is a map-backed KV. Contents do not survive the process.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV creates an empty in-memory KV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *MemoryKV) Close() error {
	return nil
}

// Keys returns the stored keys; used by tests and diagnostics.
func (m *MemoryKV) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}
