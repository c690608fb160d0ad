package geocache

import (
	"context"
	"sync"

	"github.com/salemap/saled/pkg/model"
)

// Memory is a process-local cache for running without Postgres or Redis.
// Entries do not survive a restart.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]model.GeocodeEntry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]model.GeocodeEntry)}
}

func (m *Memory) Get(_ context.Context, key string) (*model.GeocodeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// Put merges entry into any existing record, keeping the first non-empty address.
func (m *Memory) Put(_ context.Context, entry model.GeocodeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[entry.Key]; ok && existing.Address != "" {
		entry.Address = existing.Address
	}
	m.entries[entry.Key] = entry
	return nil
}
