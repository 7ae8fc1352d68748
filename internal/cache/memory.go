package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Cache for tests and single-instance setups.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memEntry
	gens    map[string]int64
}

type memEntry struct {
	val     []byte
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{now: time.Now, entries: map[string]memEntry{}, gens: map[string]int64{}}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.val...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memEntry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *Memory) Generation(_ context.Context, partition string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gens[partition], nil
}

func (m *Memory) Bump(_ context.Context, partitions ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range partitions {
		m.gens[p]++
	}
	return nil
}

func (m *Memory) Close() error { return nil }

// Len reports the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
