package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/agkloop/advanced-caching/internal/circuitbreaker"
	"github.com/agkloop/advanced-caching/internal/common/errors"
)

// RemoteConfig holds connection settings for a Redis-backed store.
type RemoteConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// DialRemote connects to Redis and verifies the connection with a ping.
func DialRemote(config *RemoteConfig) (*redis.Client, error) {
	if config == nil {
		return nil, errors.ConfigError("redis config is required")
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.ConnectionError("failed to connect to Redis", err)
	}

	return rdb, nil
}

// RemoteStore is a Storage backed by Redis. Physical keys are prefix+key and
// values are JSON blobs carrying the value plus its freshness metadata.
//
// Entries are physically retained past FreshUntil so that staleness metadata
// survives for stale-while-revalidate reads; logical expiry is enforced on
// every read against the blob's own FreshUntil. Read failures and malformed
// blobs are treated as absent so a corrupted record self-heals on the next
// write; write failures surface as backend errors.
type RemoteStore struct {
	client *redis.Client
	prefix string
	clock  Clock

	// staleRetention is how long an entry outlives its freshness window.
	// Zero means "as long again as the fresh window itself".
	staleRetention time.Duration

	breaker *circuitbreaker.Breaker
}

// RemoteOption configures a RemoteStore.
type RemoteOption func(*RemoteStore)

// WithRemoteClock overrides the wall clock, primarily for tests.
func WithRemoteClock(clock Clock) RemoteOption {
	return func(r *RemoteStore) {
		r.clock = clock
	}
}

// WithStaleRetention sets how long entries are physically retained past their
// freshness window. Size it to at least the stale window of any SWR cache
// reading through this store.
func WithStaleRetention(d time.Duration) RemoteOption {
	return func(r *RemoteStore) {
		r.staleRetention = d
	}
}

// WithBreaker routes every Redis round trip through a circuit breaker.
func WithBreaker(b *circuitbreaker.Breaker) RemoteOption {
	return func(r *RemoteStore) {
		r.breaker = b
	}
}

// NewRemoteStore creates a Redis-backed store namespaced by prefix.
func NewRemoteStore(client *redis.Client, prefix string, opts ...RemoteOption) *RemoteStore {
	store := &RemoteStore{
		client: client,
		prefix: prefix,
		clock:  realClock{},
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Close releases the underlying Redis client.
func (r *RemoteStore) Close() error {
	return r.client.Close()
}

// Health verifies the Redis connection.
func (r *RemoteStore) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

// makeKey adds the namespace prefix to a key.
func (r *RemoteStore) makeKey(key string) string {
	return r.prefix + key
}

// exec runs a Redis round trip, through the circuit breaker when configured.
func (r *RemoteStore) exec(fn func() (interface{}, error)) (interface{}, error) {
	if r.breaker != nil {
		return r.breaker.Execute(fn)
	}
	return fn()
}

// physicalTTL computes how long the blob lives in Redis. The blob must outlive
// FreshUntil so stale reads still see the metadata.
func (r *RemoteStore) physicalTTL(entry *Entry, now time.Time) time.Duration {
	if entry.FreshUntil.IsZero() {
		return 0
	}

	freshFor := entry.FreshUntil.Sub(now)
	retention := r.staleRetention
	if retention <= 0 {
		retention = freshFor
	}

	ttl := freshFor + retention
	if ttl <= 0 {
		// Entry is already past its retention window; keep it around briefly
		// so concurrent readers observe consistent state.
		ttl = time.Second
	}
	return ttl
}

// Get returns the value only while the stored entry is fresh.
func (r *RemoteStore) Get(ctx context.Context, key string) (interface{}, bool) {
	entry, ok := r.GetEntry(ctx, key)
	if !ok || !entry.IsFresh(r.clock.Now()) {
		return nil, false
	}
	return entry.Value, true
}

// Set stores value under key, replacing any prior entry unconditionally.
// Values must be JSON-serializable.
func (r *RemoteStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	now := r.clock.Now()
	entry := NewEntry(value, ttl, now)

	payload, err := json.Marshal(entry)
	if err != nil {
		return errors.BackendError("failed to marshal cache entry", err).WithContext("key", key)
	}

	_, err = r.exec(func() (interface{}, error) {
		return nil, r.client.Set(ctx, r.makeKey(key), payload, r.physicalTTL(entry, now)).Err()
	})
	if err != nil {
		return errors.BackendError("redis set failed", err).WithContext("key", key)
	}
	return nil
}

// Delete removes the entry if present.
func (r *RemoteStore) Delete(ctx context.Context, key string) error {
	_, err := r.exec(func() (interface{}, error) {
		return nil, r.client.Del(ctx, r.makeKey(key)).Err()
	})
	if err != nil {
		return errors.BackendError("redis delete failed", err).WithContext("key", key)
	}
	return nil
}

// Exists reports whether a fresh entry is stored under key.
func (r *RemoteStore) Exists(ctx context.Context, key string) (bool, error) {
	entry, ok := r.GetEntry(ctx, key)
	return ok && entry.IsFresh(r.clock.Now()), nil
}

// SetIfNotExists atomically stores value only if no fresh entry is present.
//
// The absent-key case is decided by a native SET NX. When a blob is resident
// but logically stale (stale retention keeps blobs past FreshUntil), the
// takeover runs inside a WATCH transaction so two callers cannot both win.
func (r *RemoteStore) SetIfNotExists(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	now := r.clock.Now()
	entry := NewEntry(value, ttl, now)

	payload, err := json.Marshal(entry)
	if err != nil {
		return false, errors.BackendError("failed to marshal cache entry", err).WithContext("key", key)
	}

	physicalKey := r.makeKey(key)
	physicalTTL := r.physicalTTL(entry, now)

	result, err := r.exec(func() (interface{}, error) {
		ok, err := r.client.SetNX(ctx, physicalKey, payload, physicalTTL).Result()
		if err != nil || ok {
			return ok, err
		}

		// A blob is resident. It only blocks the store while it is fresh.
		won := false
		err = r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, physicalKey).Result()
			if err != nil && err != redis.Nil {
				return err
			}
			if err == nil {
				var existing Entry
				if json.Unmarshal([]byte(data), &existing) == nil && existing.IsFresh(now) {
					return nil
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, physicalKey, payload, physicalTTL)
				return nil
			})
			if err == nil {
				won = true
			}
			return err
		}, physicalKey)

		if err == redis.TxFailedErr {
			// Another caller raced us to the key.
			return false, nil
		}
		return won, err
	})
	if err != nil {
		return false, errors.BackendError("redis setnx failed", err).WithContext("key", key)
	}
	return result.(bool), nil
}

// GetEntry returns the raw entry, fresh or stale, if one is stored.
func (r *RemoteStore) GetEntry(ctx context.Context, key string) (*Entry, bool) {
	result, err := r.exec(func() (interface{}, error) {
		return r.client.Get(ctx, r.makeKey(key)).Result()
	})
	if err != nil {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(result.(string)), &entry); err != nil {
		// Malformed blob reads as absent and self-heals on the next write.
		return nil, false
	}
	return &entry, true
}

// SetEntry stores a raw entry. A non-nil ttlOverride recomputes FreshUntil
// from now.
func (r *RemoteStore) SetEntry(ctx context.Context, key string, entry *Entry, ttlOverride *time.Duration) error {
	now := r.clock.Now()
	stored := entry.Clone()
	if ttlOverride != nil {
		stored.FreshUntil = time.Time{}
		if *ttlOverride > 0 {
			stored.FreshUntil = now.Add(*ttlOverride)
		}
	}

	payload, err := json.Marshal(stored)
	if err != nil {
		return errors.BackendError("failed to marshal cache entry", err).WithContext("key", key)
	}

	_, err = r.exec(func() (interface{}, error) {
		return nil, r.client.Set(ctx, r.makeKey(key), payload, r.physicalTTL(stored, now)).Err()
	})
	if err != nil {
		return errors.BackendError("redis set failed", err).WithContext("key", key)
	}
	return nil
}

// CleanupExpired scans the namespace and deletes blobs whose freshness window
// has passed. Redis reclaims physically expired blobs on its own; this pass
// removes the stale-retained ones early.
func (r *RemoteStore) CleanupExpired(ctx context.Context) (int, error) {
	now := r.clock.Now()

	result, err := r.exec(func() (interface{}, error) {
		removed := 0
		iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			physicalKey := iter.Val()

			data, err := r.client.Get(ctx, physicalKey).Result()
			if err != nil {
				continue
			}

			var entry Entry
			if json.Unmarshal([]byte(data), &entry) != nil {
				continue
			}

			if !entry.IsFresh(now) {
				if err := r.client.Del(ctx, physicalKey).Err(); err == nil {
					removed++
				}
			}
		}
		return removed, iter.Err()
	})
	if err != nil {
		return 0, errors.BackendError("redis cleanup failed", err)
	}
	return result.(int), nil
}

// Ensure RemoteStore implements Storage
var _ Storage = (*RemoteStore)(nil)
