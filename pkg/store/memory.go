package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store using in-process maps. This is the default
// backend; all state is lost when the process exits.
//
// A single mutex guards both the entry map and the counter map. Every
// admission check and every transaction consume runs under the lock, which
// is what makes increment-and-compare and read-and-delete atomic.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	counters map[string]*memoryCounter

	// now is replaceable for tests.
	now func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]memoryEntry),
		counters: make(map[string]*memoryCounter),
		now:      time.Now,
	}
}

// SetNow replaces the store's clock. Intended for expiry tests.
func (m *MemoryStore) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Get retrieves the value for a key.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || entry.expired(m.now()) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores a value for a key, overwriting any existing entry.
func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{value: value, expiresAt: expiresAt}
	return nil
}

// Delete removes the entry for a key.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Consume atomically reads and deletes the entry for a key.
func (m *MemoryStore) Consume(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	delete(m.entries, key)
	if entry.expired(m.now()) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

// IncrWindow performs an atomic fixed-window admission check for a key.
func (m *MemoryStore) IncrWindow(ctx context.Context, key string, max int64, window time.Duration) (WindowResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	counter, ok := m.counters[key]
	if !ok || now.After(counter.expiresAt) {
		counter = &memoryCounter{count: 1, expiresAt: now.Add(window)}
		m.counters[key] = counter
		return WindowResult{Allowed: true, Count: 1, ExpiresAt: counter.expiresAt}, nil
	}

	if counter.count+1 > max {
		// Rejected attempts do not advance the counter past the limit.
		return WindowResult{Allowed: false, Count: counter.count, ExpiresAt: counter.expiresAt}, nil
	}

	counter.count++
	return WindowResult{Allowed: true, Count: counter.count, ExpiresAt: counter.expiresAt}, nil
}

// Sweep removes expired entries and counters.
func (m *MemoryStore) Sweep(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, entry := range m.entries {
		if entry.expired(now) {
			delete(m.entries, key)
			removed++
		}
	}
	for key, counter := range m.counters {
		if now.After(counter.expiresAt) {
			delete(m.counters, key)
			removed++
		}
	}
	return removed, nil
}

// Close releases resources held by the store. For the memory backend this
// is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
