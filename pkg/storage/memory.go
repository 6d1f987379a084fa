package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It backs dry runs and tests, and can
// inject failures per operation.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	ttls    map[string]time.Duration

	// Error hooks. A non-nil return fails the operation.
	GetErr    func(key string) error
	PutErr    func(key string) error
	DeleteErr func(key string) error
	ExistsErr func(key string) error

	calls map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		ttls:    make(map[string]time.Duration),
		calls:   make(map[string]int),
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Get"]++
	if m.GetErr != nil {
		if err := m.GetErr(key); err != nil {
			return nil, false, err
		}
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Put"]++
	if m.PutErr != nil {
		if err := m.PutErr(key); err != nil {
			return err
		}
	}
	m.objects[key] = append([]byte(nil), data...)
	delete(m.ttls, key)
	return nil
}

func (m *MemoryStore) PutExpiring(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := m.Put(ctx, key, data); err != nil {
		return err
	}
	m.mu.Lock()
	m.ttls[key] = ttl
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Delete"]++
	if m.DeleteErr != nil {
		if err := m.DeleteErr(key); err != nil {
			return err
		}
	}
	delete(m.objects, key)
	delete(m.ttls, key)
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Exists"]++
	if m.ExistsErr != nil {
		if err := m.ExistsErr(key); err != nil {
			return false, err
		}
	}
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// Keys returns the stored keys in sorted order.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TTL returns the expiry recorded by PutExpiring for key.
func (m *MemoryStore) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[key]
}

// Calls returns how many times op was invoked.
func (m *MemoryStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}
