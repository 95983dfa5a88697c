package store

import (
	"context"
	"sync"

	"github.com/timzifer/ringd/settings"
)

type memoryKey struct {
	ns   settings.Namespace
	user int
	key  string
}

type memoryBackend struct {
	mu     sync.RWMutex
	values map[memoryKey]string
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{values: make(map[memoryKey]string)}
}

func (m *memoryBackend) get(_ context.Context, ns settings.Namespace, user int, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[memoryKey{ns: ns, user: user, key: key}]
	return value, ok, nil
}

func (m *memoryBackend) put(_ context.Context, ns settings.Namespace, user int, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[memoryKey{ns: ns, user: user, key: key}] = value
	return nil
}

func (m *memoryBackend) close() error {
	return nil
}
