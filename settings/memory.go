package settings

import (
	"context"
	"sync"
)

// Memory is an in-memory Source.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ Source = (*Memory)(nil)

// NewMemory returns a Memory seeded with values.
func NewMemory(values map[string]string) *Memory {
	m := &Memory{values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

// GetSetting returns the value for key, or "" when unset.
func (m *Memory) GetSetting(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key], nil
}

// SetSetting stores value under key. An empty value removes the key.
func (m *Memory) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == "" {
		delete(m.values, key)
		return nil
	}
	m.values[key] = value
	return nil
}
