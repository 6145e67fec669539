package kv

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implementa Client sobre go-cache.
// Útil para desarrollo y tests; NO sirve para multi-instancia.
type memoryClient struct {
	prefix string
	c      *gocache.Cache
	// go-cache no tiene get+delete atómico; el mutex cubre GetDel y SetNX
	// contra callers concurrentes dentro del proceso.
	mu sync.Mutex
}

// NewMemory crea un cliente en memoria.
func NewMemory(prefix string) *memoryClient {
	return &memoryClient{
		prefix: prefix,
		c:      gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func (m *memoryClient) key(k string) string {
	if m.prefix == "" {
		return k
	}
	return m.prefix + ":" + k
}

func ttlOrForever(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (m *memoryClient) Get(ctx context.Context, key string) (string, error) {
	v, ok := m.c.Get(m.key(key))
	if !ok {
		return "", ErrNotFound
	}
	return v.(string), nil
}

func (m *memoryClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.c.Set(m.key(key), value, ttlOrForever(ttl))
	return nil
}

func (m *memoryClient) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.c.Add(m.key(key), value, ttlOrForever(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *memoryClient) GetDel(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(key)
	v, ok := m.c.Get(k)
	if !ok {
		return "", ErrNotFound
	}
	m.c.Delete(k)
	return v.(string), nil
}

func (m *memoryClient) Delete(ctx context.Context, key string) error {
	m.c.Delete(m.key(key))
	return nil
}

func (m *memoryClient) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.c.Get(m.key(key))
	return ok, nil
}

func (m *memoryClient) Ping(ctx context.Context) error { return nil }

func (m *memoryClient) Close() error { return nil }
