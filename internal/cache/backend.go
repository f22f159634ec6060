package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Backend is the physical key-value store behind the tiered cache.
// pkg/redis.Client satisfies it in production; MemoryBackend serves tests
// and redis-less runs. Implementations may honour ttl natively, but the
// store never relies on that: entry age is validated on every read.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
}

// MemoryBackend is an in-process Backend. It ignores TTLs entirely, which
// leaves expired entries physically present until the sweep removes them.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]string)}
}

func (m *MemoryBackend) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value)
	return nil
}

func (m *MemoryBackend) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

// ScanKeys supports the single trailing-asterisk patterns the store emits.
func (m *MemoryBackend) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Len returns the number of physically stored entries.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
