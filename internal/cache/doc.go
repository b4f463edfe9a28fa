// Package cache provides a caching engine with three access patterns over a
// pluggable storage abstraction.
//
// Storage backends:
//
// 1. MemoryStore - in-process map guarded by a single mutex
//   - Lazy expiry on read, optional janitor goroutine for reclamation
//   - Coarse locking keeps SetIfNotExists and CleanupExpired atomic with
//     respect to every other operation
//
// 2. RemoteStore - Redis-backed storage using go-redis
//   - Keys namespaced by a configurable prefix
//   - Entries serialized as JSON blobs carrying value and freshness metadata
//   - SetIfNotExists delegated to Redis SET NX / WATCH transactions
//   - Optional circuit breaker around every round trip
//
// 3. HybridStore - two-level composition of a fast L1 and a durable L2
//   - Reads prefer L1 and promote L2 hits with a bounded residency TTL
//   - Writes go through both layers, deletes aggregate partial failures
//
// Access patterns layered on any Storage:
//
//   - TTLCache - strict expiry: hit returns, miss recomputes synchronously
//   - SWRCache - stale-while-revalidate: stale reads return immediately and
//     refresh in the background behind a single-flight guard
//
// Background preload lives in the sibling preload package.
//
// Usage:
//
//	store := cache.NewMemoryStore()
//	swr, err := cache.NewSWRCache(store, cache.SWRConfig{
//		TTL:        time.Minute,
//		StaleTTL:   30 * time.Second,
//		EnableLock: true,
//	})
//	v, err := swr.Get(ctx, "user:42", func(ctx context.Context) (interface{}, error) {
//		return fetchUser(ctx, 42)
//	})
package cache
