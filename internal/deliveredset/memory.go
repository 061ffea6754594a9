package deliveredset

import (
	"context"
	"sort"
	"sync"
)

// Memory keeps the set in process. Nothing survives a restart.
type Memory struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

func NewMemory(keys ...string) *Memory {
	m := &Memory{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		m.keys[k] = struct{}{}
	}
	return m
}

func (m *Memory) Name() string { return BackendMemory }

func (m *Memory) Load(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.keys))
	for k := range m.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Add(ctx context.Context, key string) error {
	m.mu.Lock()
	m.keys[key] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.keys = make(map[string]struct{})
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
