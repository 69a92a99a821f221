package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

type memoryList struct {
	values    [][]byte
	expiresAt time.Time
}

// Memory is the in-process Store used for single-instance deployments and
// tests. Expiry is lazy: entries are dropped when read past their TTL.
type Memory struct {
	mu    sync.RWMutex
	kv    map[string]memoryEntry
	lists map[string]memoryList

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		kv:    make(map[string]memoryEntry),
		lists: make(map[string]memoryList),
		Now:   time.Now,
	}
}

func (m *Memory) expired(at time.Time) bool {
	return !at.IsZero() && !m.Now().Before(at)
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.kv[key]
	m.mu.RUnlock()
	if !ok || m.expired(e.expiresAt) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = m.Now().Add(ttl)
	}
	m.mu.Lock()
	m.kv[key] = memoryEntry{value: value, expiresAt: exp}
	m.mu.Unlock()
	return nil
}

func (m *Memory) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.kv[key]; ok && !m.expired(e.expiresAt) {
		return false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = m.Now().Add(ttl)
	}
	m.kv[key] = memoryEntry{value: value, expiresAt: exp}
	return true, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.kv, key)
	delete(m.lists, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListPush(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[key]
	if m.expired(l.expiresAt) {
		l = memoryList{}
	}
	l.values = append([][]byte{value}, l.values...)
	m.lists[key] = l
	return nil
}

func (m *Memory) ListTrim(_ context.Context, key string, start, stop int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[key]
	if !ok || m.expired(l.expiresAt) {
		return nil
	}
	lo, hi := clampRange(start, stop, len(l.values))
	if lo > hi {
		l.values = nil
	} else {
		l.values = l.values[lo : hi+1]
	}
	m.lists[key] = l
	return nil
}

func (m *Memory) ListRange(_ context.Context, key string, start, stop int) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.lists[key]
	if !ok || m.expired(l.expiresAt) {
		return nil, nil
	}
	lo, hi := clampRange(start, stop, len(l.values))
	if lo > hi {
		return nil, nil
	}
	out := make([][]byte, hi-lo+1)
	copy(out, l.values[lo:hi+1])
	return out, nil
}

// clampRange maps a redis-style inclusive range onto [0, n).
func clampRange(start, stop, n int) (int, int) {
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}
