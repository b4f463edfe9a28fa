package cache

import (
	"context"
	"time"

	"github.com/agkloop/advanced-caching/internal/common/errors"
	"github.com/agkloop/advanced-caching/internal/common/logging"
)

// Producer computes a value for a key when the cache cannot serve it.
type Producer func(ctx context.Context) (interface{}, error)

// TTLCache is the strict-expiry access pattern: a fresh hit returns the
// cached value, a miss invokes the producer synchronously and stores the
// result. A miss behaves exactly like calling the uncached function -
// producer errors propagate unchanged and nothing is written.
//
// Concurrent misses on the same key each invoke the producer; callers that
// need single-flight recomputation should use SWRCache instead.
type TTLCache struct {
	store  Storage
	ttl    time.Duration
	logger logging.Logger
}

// TTLOption configures a TTLCache.
type TTLOption func(*TTLCache)

// WithTTLLogger overrides the logger.
func WithTTLLogger(logger logging.Logger) TTLOption {
	return func(c *TTLCache) {
		c.logger = logger
	}
}

// NewTTLCache creates a strict-TTL cache over the given store.
func NewTTLCache(store Storage, ttl time.Duration, opts ...TTLOption) (*TTLCache, error) {
	if err := ValidateStorage(store); err != nil {
		return nil, err
	}

	cache := &TTLCache{
		store:  store,
		ttl:    ttl,
		logger: logging.GetGlobalLogger(),
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache, nil
}

// Get returns the cached value for key, invoking producer on a miss.
//
// When the producer succeeds but the write-back fails, the computed value is
// returned together with the backend error so the caller still makes
// progress.
func (c *TTLCache) Get(ctx context.Context, key string, producer Producer) (interface{}, error) {
	if value, ok := c.store.Get(ctx, key); ok {
		c.logger.Debug("cache hit", logging.String("key", key))
		return value, nil
	}

	c.logger.Debug("cache miss", logging.String("key", key))

	result, err := producer(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.store.Set(ctx, key, result, c.ttl); err != nil {
		return result, errors.BackendError("cache write-back failed", err).WithContext("key", key)
	}
	return result, nil
}

// Invalidate removes the cached value for key.
func (c *TTLCache) Invalidate(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}
