package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/agkloop/advanced-caching/internal/common/errors"
	"github.com/agkloop/advanced-caching/internal/common/logging"
)

// refreshLockMarker is the value stored under the refresh lock key. Only the
// key's presence matters.
const refreshLockMarker = "1"

// defaultLockTTL applies when neither LockTTL nor StaleTTL is configured.
const defaultLockTTL = 10 * time.Second

// SWRConfig configures a stale-while-revalidate cache.
type SWRConfig struct {
	// TTL is the freshness window written on every refresh. Zero or less
	// means entries never expire.
	TTL time.Duration

	// StaleTTL is the grace window past TTL during which the old value is
	// still served while a refresh runs in the background. Zero disables the
	// stale path entirely.
	StaleTTL time.Duration

	// EnableLock guards background refreshes with a TTL lock marker so only
	// one concurrent caller recomputes. With it false every stale caller
	// refreshes independently - an intentional thundering-herd allowance for
	// cheap or externally-serialized producers.
	EnableLock bool

	// LockTTL bounds how long the refresh lock is held. The lock self-heals
	// on expiry if the winning caller crashes before writing; this is a
	// best-effort liveness property, not a strict guarantee. Defaults to
	// StaleTTL, or 10s when StaleTTL is zero.
	LockTTL time.Duration

	// OnRefreshError receives producer and backend errors from the
	// background refresh path, which never surface to readers.
	OnRefreshError func(key string, err error)
}

// DefaultSWRConfig returns a starting-point configuration.
func DefaultSWRConfig() SWRConfig {
	return SWRConfig{
		TTL:        time.Minute,
		StaleTTL:   30 * time.Second,
		EnableLock: true,
	}
}

// SWRCache coordinates freshness per key over any Storage.
//
// State machine per key, driven by the clock against one Entry:
//
//   - Fresh: Get returns the value, no side effect.
//   - Stale (past FreshUntil, within StaleTTL): Get returns the old value
//     immediately and triggers a guarded asynchronous refresh.
//   - Expired or absent: Get blocks, invokes the producer synchronously and
//     writes the result with the configured TTL.
//
// Synchronous recomputation is collapsed in-process with singleflight;
// cross-process exclusion on the stale path uses a TTL lock marker written
// through the store's SetIfNotExists.
type SWRCache struct {
	store  Storage
	config SWRConfig
	logger logging.Logger
	clock  Clock

	sf singleflight.Group
	wg sync.WaitGroup
}

// SWROption configures an SWRCache.
type SWROption func(*SWRCache)

// WithSWRLogger overrides the logger.
func WithSWRLogger(logger logging.Logger) SWROption {
	return func(c *SWRCache) {
		c.logger = logger
	}
}

// WithSWRClock overrides the wall clock, primarily for tests.
func WithSWRClock(clock Clock) SWROption {
	return func(c *SWRCache) {
		c.clock = clock
	}
}

// NewSWRCache creates a stale-while-revalidate cache over the given store.
func NewSWRCache(store Storage, config SWRConfig, opts ...SWROption) (*SWRCache, error) {
	if err := ValidateStorage(store); err != nil {
		return nil, err
	}

	if config.LockTTL <= 0 {
		if config.StaleTTL > 0 {
			config.LockTTL = config.StaleTTL
		} else {
			config.LockTTL = defaultLockTTL
		}
	}

	cache := &SWRCache{
		store:  store,
		config: config,
		logger: logging.GetGlobalLogger(),
		clock:  realClock{},
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache, nil
}

// Get returns the value for key, consulting the entry's freshness.
//
// Fresh and stale reads never invoke the producer on the calling goroutine;
// expired and absent keys do, and producer errors propagate to the caller
// unchanged with nothing written.
func (c *SWRCache) Get(ctx context.Context, key string, producer Producer) (interface{}, error) {
	now := c.clock.Now()

	entry, ok := c.store.GetEntry(ctx, key)
	if !ok {
		c.logger.Debug("cache miss", logging.String("key", key))
		return c.refreshSync(ctx, key, producer)
	}

	if entry.IsFresh(now) {
		c.logger.Debug("cache hit", logging.String("key", key))
		return entry.Value, nil
	}

	if c.config.StaleTTL > 0 && now.Before(entry.FreshUntil.Add(c.config.StaleTTL)) {
		c.logger.Debug("cache hit stale, refreshing in background",
			logging.String("key", key),
			logging.Duration("age", entry.Age(now)),
		)

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			// The caller's context may be canceled the moment Get returns;
			// the refresh runs on its own.
			c.refreshAsync(context.Background(), key, producer)
		}()

		return entry.Value, nil
	}

	c.logger.Debug("cache hit too stale",
		logging.String("key", key),
		logging.Duration("age", entry.Age(now)),
	)
	return c.refreshSync(ctx, key, producer)
}

// refreshSync recomputes the value on the calling goroutine. Concurrent
// callers for the same key are collapsed into one producer invocation and
// share its result.
func (c *SWRCache) refreshSync(ctx context.Context, key string, producer Producer) (interface{}, error) {
	value, err, _ := c.sf.Do(key, func() (interface{}, error) {
		result, err := producer(ctx)
		if err != nil {
			return nil, err
		}

		if err := c.store.Set(ctx, key, result, c.config.TTL); err != nil {
			return result, errors.BackendError("cache write-back failed", err).WithContext("key", key)
		}
		return result, nil
	})
	return value, err
}

// refreshAsync recomputes the value off the read path. With locking enabled
// only the caller that wins the TTL marker actually refreshes; everyone else
// skips this round. Errors are reported through OnRefreshError and logging,
// never to readers, and the previous entry stays in place.
func (c *SWRCache) refreshAsync(ctx context.Context, key string, producer Producer) {
	if c.config.EnableLock {
		acquired, err := c.store.SetIfNotExists(ctx, LockKey(key), refreshLockMarker, c.config.LockTTL)
		if err != nil {
			c.logger.Error("refresh lock acquisition failed", err, logging.String("key", key))
			c.reportRefreshError(key, err)
			return
		}
		if !acquired {
			c.logger.Debug("refresh already in flight", logging.String("key", key))
			return
		}
	}

	result, err := producer(ctx)
	if err != nil {
		c.logger.Error("background refresh failed", err, logging.String("key", key))
		c.reportRefreshError(key, err)
		return
	}

	if err := c.store.Set(ctx, key, result, c.config.TTL); err != nil {
		c.logger.Error("background refresh write failed", err, logging.String("key", key))
		c.reportRefreshError(key, err)
		return
	}

	c.logger.Debug("background refresh complete", logging.String("key", key))
}

func (c *SWRCache) reportRefreshError(key string, err error) {
	if c.config.OnRefreshError != nil {
		c.config.OnRefreshError(key, err)
	}
}

// Invalidate removes the cached value for key.
func (c *SWRCache) Invalidate(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// Wait blocks until all in-flight background refreshes have finished. Useful
// for graceful shutdown and deterministic tests.
func (c *SWRCache) Wait() {
	c.wg.Wait()
}
