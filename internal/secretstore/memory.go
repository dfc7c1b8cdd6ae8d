package secretstore

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// MemoryBackend keeps secrets in process memory. It backs local development
// and tests; nothing survives a restart.
type MemoryBackend struct {
	mu     sync.RWMutex
	data   map[string]map[string]string
	writes int
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: map[string]map[string]string{}}
}

func (m *MemoryBackend) Read(_ context.Context, path string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.data[path]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", path, ErrNotFound)
	}
	return maps.Clone(d), nil
}

func (m *MemoryBackend) Write(_ context.Context, path string, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[path] = maps.Clone(data)
	m.writes++
	return nil
}

// Writes returns the number of writes performed.
func (m *MemoryBackend) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Paths returns every stored path.
func (m *MemoryBackend) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.data))
	for p := range m.data {
		paths = append(paths, p)
	}
	return paths
}
