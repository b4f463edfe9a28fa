package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a thread-safe in-process Storage backed by a map.
//
// A single mutex guards the entire key space rather than per-key locks. Every
// operation is O(1) against the map, and holding one guard across a full
// operation keeps SetIfNotExists and CleanupExpired atomic with respect to
// all other operations. This trades parallelism for simplicity.
//
// Expired entries are dropped lazily on read. An optional janitor goroutine
// reclaims memory on an interval; it is not required for correctness.
type MemoryStore struct {
	mu    sync.Mutex
	data  map[string]*Entry
	clock Clock

	janitorInterval time.Duration
	stopChan        chan struct{}
	stopOnce        sync.Once
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the wall clock, primarily for tests.
func WithMemoryClock(clock Clock) MemoryOption {
	return func(m *MemoryStore) {
		m.clock = clock
	}
}

// WithJanitor starts a background goroutine that runs CleanupExpired on the
// given interval. Call Stop to shut it down.
func WithJanitor(interval time.Duration) MemoryOption {
	return func(m *MemoryStore) {
		m.janitorInterval = interval
	}
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	store := &MemoryStore{
		data:     make(map[string]*Entry),
		clock:    realClock{},
		stopChan: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(store)
	}

	if store.janitorInterval > 0 {
		go store.janitor()
	}

	return store
}

// Get returns the value if the key is still fresh, dropping expired entries.
func (m *MemoryStore) Get(ctx context.Context, key string) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.data[key]
	if !ok {
		return nil, false
	}

	if !entry.IsFresh(m.clock.Now()) {
		delete(m.data, key)
		return nil, false
	}

	return entry.Value, true
}

// Set stores value under key, replacing any prior entry unconditionally.
func (m *MemoryStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	entry := NewEntry(value, ttl, m.clock.Now())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = entry
	return nil
}

// Delete removes the entry if present.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Exists reports whether a fresh entry is stored under key.
func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.Get(ctx, key)
	return ok, nil
}

// SetIfNotExists atomically stores value only if no fresh entry is present.
func (m *MemoryStore) SetIfNotExists(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.data[key]; ok && entry.IsFresh(now) {
		return false, nil
	}

	m.data[key] = NewEntry(value, ttl, now)
	return true, nil
}

// GetEntry returns a copy of the raw entry, fresh or stale.
func (m *MemoryStore) GetEntry(ctx context.Context, key string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.data[key]
	if !ok {
		return nil, false
	}
	return entry.Clone(), true
}

// SetEntry stores a copy of the raw entry. A non-nil ttlOverride recomputes
// FreshUntil from now.
func (m *MemoryStore) SetEntry(ctx context.Context, key string, entry *Entry, ttlOverride *time.Duration) error {
	stored := entry.Clone()
	if ttlOverride != nil {
		stored.FreshUntil = time.Time{}
		if *ttlOverride > 0 {
			stored.FreshUntil = m.clock.Now().Add(*ttlOverride)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = stored
	return nil
}

// CleanupExpired removes entries whose FreshUntil has passed and returns the
// number removed.
func (m *MemoryStore) CleanupExpired(ctx context.Context) (int, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.data {
		if !entry.IsFresh(now) {
			delete(m.data, key)
			removed++
		}
	}
	return removed, nil
}

// Clear removes all entries.
func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]*Entry)
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// Stop shuts down the janitor goroutine, if one was started. Safe to call
// more than once and from concurrent goroutines.
func (m *MemoryStore) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}

// janitor periodically removes expired entries
func (m *MemoryStore) janitor() {
	ticker := time.NewTicker(m.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CleanupExpired(context.Background())
		case <-m.stopChan:
			return
		}
	}
}

// Ensure MemoryStore implements Storage
var _ Storage = (*MemoryStore)(nil)
