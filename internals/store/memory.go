package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// NewMemory returns a Store backed by an in-memory map. Keys expire lazily on
// access, which matches the contract callers rely on. Useful for tests and
// local development.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

// Memory implements Store for tests and local development.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     string
	counter   int64
	expiresAt time.Time
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(key)
	if !ok {
		return "", ErrKeyNotFound
	}
	return entry.value, nil
}

func (m *Memory) GetJSON(ctx context.Context, key string, out any) error {
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), out)
}

func (m *Memory) SetEX(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) SetJSONEX(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return m.SetEX(ctx, key, string(data), ttl)
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.live(key)
	return ok, nil
}

func (m *Memory) IncrEX(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, _ := m.live(key)
	entry.counter++
	entry.expiresAt = time.Now().Add(ttl)
	m.entries[key] = entry
	return entry.counter, nil
}

// live returns the entry for key if present and not expired, dropping it
// otherwise. Caller must hold mu.
func (m *Memory) live(key string) (memoryEntry, bool) {
	entry, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}
