// Package testutil provides shared test doubles for the caching engine.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/agkloop/advanced-caching/internal/cache"
)

// FakeClock is a manually advanced cache.Clock for deterministic expiry
// tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock frozen at the given time.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SetTime moves the clock to an absolute time.
func (c *FakeClock) SetTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// CountingStore wraps a Storage and counts calls per method name, so tests
// can assert which layer served a read.
type CountingStore struct {
	Inner cache.Storage

	mu     sync.Mutex
	counts map[string]int
}

// NewCountingStore wraps inner.
func NewCountingStore(inner cache.Storage) *CountingStore {
	return &CountingStore{
		Inner:  inner,
		counts: make(map[string]int),
	}
}

// Count returns how often method was called.
func (s *CountingStore) Count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[method]
}

func (s *CountingStore) record(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[method]++
}

func (s *CountingStore) Get(ctx context.Context, key string) (interface{}, bool) {
	s.record("Get")
	return s.Inner.Get(ctx, key)
}

func (s *CountingStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	s.record("Set")
	return s.Inner.Set(ctx, key, value, ttl)
}

func (s *CountingStore) Delete(ctx context.Context, key string) error {
	s.record("Delete")
	return s.Inner.Delete(ctx, key)
}

func (s *CountingStore) Exists(ctx context.Context, key string) (bool, error) {
	s.record("Exists")
	return s.Inner.Exists(ctx, key)
}

func (s *CountingStore) SetIfNotExists(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	s.record("SetIfNotExists")
	return s.Inner.SetIfNotExists(ctx, key, value, ttl)
}

func (s *CountingStore) GetEntry(ctx context.Context, key string) (*cache.Entry, bool) {
	s.record("GetEntry")
	return s.Inner.GetEntry(ctx, key)
}

func (s *CountingStore) SetEntry(ctx context.Context, key string, entry *cache.Entry, ttlOverride *time.Duration) error {
	s.record("SetEntry")
	return s.Inner.SetEntry(ctx, key, entry, ttlOverride)
}

func (s *CountingStore) CleanupExpired(ctx context.Context) (int, error) {
	s.record("CleanupExpired")
	return s.Inner.CleanupExpired(ctx)
}

// FlakyStore wraps a Storage and injects errors per method name, mirroring
// the engine's backend-failure paths.
type FlakyStore struct {
	Inner cache.Storage

	mu            sync.Mutex
	errorOnMethod map[string]error
}

// NewFlakyStore wraps inner with no failures configured.
func NewFlakyStore(inner cache.Storage) *FlakyStore {
	return &FlakyStore{
		Inner:         inner,
		errorOnMethod: make(map[string]error),
	}
}

// FailWith makes method return err until cleared with a nil err.
func (s *FlakyStore) FailWith(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errorOnMethod, method)
		return
	}
	s.errorOnMethod[method] = err
}

func (s *FlakyStore) errFor(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorOnMethod[method]
}

func (s *FlakyStore) Get(ctx context.Context, key string) (interface{}, bool) {
	if s.errFor("Get") != nil {
		// Read failures surface as absence.
		return nil, false
	}
	return s.Inner.Get(ctx, key)
}

func (s *FlakyStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := s.errFor("Set"); err != nil {
		return err
	}
	return s.Inner.Set(ctx, key, value, ttl)
}

func (s *FlakyStore) Delete(ctx context.Context, key string) error {
	if err := s.errFor("Delete"); err != nil {
		return err
	}
	return s.Inner.Delete(ctx, key)
}

func (s *FlakyStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.errFor("Exists"); err != nil {
		return false, err
	}
	return s.Inner.Exists(ctx, key)
}

func (s *FlakyStore) SetIfNotExists(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if err := s.errFor("SetIfNotExists"); err != nil {
		return false, err
	}
	return s.Inner.SetIfNotExists(ctx, key, value, ttl)
}

func (s *FlakyStore) GetEntry(ctx context.Context, key string) (*cache.Entry, bool) {
	if s.errFor("GetEntry") != nil {
		return nil, false
	}
	return s.Inner.GetEntry(ctx, key)
}

func (s *FlakyStore) SetEntry(ctx context.Context, key string, entry *cache.Entry, ttlOverride *time.Duration) error {
	if err := s.errFor("SetEntry"); err != nil {
		return err
	}
	return s.Inner.SetEntry(ctx, key, entry, ttlOverride)
}

func (s *FlakyStore) CleanupExpired(ctx context.Context) (int, error) {
	if err := s.errFor("CleanupExpired"); err != nil {
		return 0, err
	}
	return s.Inner.CleanupExpired(ctx)
}

// Storage conformance
var (
	_ cache.Storage = (*CountingStore)(nil)
	_ cache.Storage = (*FlakyStore)(nil)
	_ cache.Clock   = (*FakeClock)(nil)
)
