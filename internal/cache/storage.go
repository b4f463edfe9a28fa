package cache

import (
	"context"
	"reflect"
	"time"

	"github.com/agkloop/advanced-caching/internal/common/errors"
)

// lockKeyPrefix derives the auxiliary key that guards background refreshes.
const lockKeyPrefix = "refresh-lock:"

// LockKey returns the derived key under which a refresh lock marker is stored.
func LockKey(key string) string {
	return lockKeyPrefix + key
}

// Storage defines the capability contract every cache backend implements.
//
// Get and Exists treat an expired entry as absent (lazy expiry). Set always
// replaces any prior entry unconditionally. SetIfNotExists is the sole
// primitive used to build mutual exclusion and must be atomic even under
// concurrent callers - no observe-then-act sequences. GetEntry and SetEntry
// expose the raw Entry, including freshness metadata, so layers such as the
// SWR coordinator do not need a separate channel; stale entries are still
// returned by GetEntry.
type Storage interface {
	// Get returns the value only while the stored entry is fresh.
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores value under key with the given ttl. A ttl of zero or less
	// means the entry never expires.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes the entry if present; deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// Exists reports whether a fresh entry is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// SetIfNotExists atomically stores value only if no fresh entry is
	// currently present. It reports whether the store occurred.
	SetIfNotExists(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	// GetEntry returns the raw entry, fresh or stale, if one is stored.
	GetEntry(ctx context.Context, key string) (*Entry, bool)

	// SetEntry stores a raw entry. When ttlOverride is non-nil the entry's
	// FreshUntil is recomputed from now using the override.
	SetEntry(ctx context.Context, key string, entry *Entry, ttlOverride *time.Duration) error

	// CleanupExpired removes entries whose FreshUntil has passed and returns
	// the number removed. Safe to call concurrently with other operations.
	CleanupExpired(ctx context.Context) (int, error)
}

// ValidateStorage verifies that a candidate backend can be used before any
// caching pattern accepts it. The compiler enforces the method set; the
// runtime check rejects nil interfaces and typed-nil implementations, which
// would otherwise fail lazily on first use.
func ValidateStorage(s Storage) error {
	if s == nil {
		return errors.ContractViolation("storage backend is nil")
	}

	v := reflect.ValueOf(s)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface:
		if v.IsNil() {
			return errors.ContractViolation("storage backend is a typed nil").
				WithContext("type", reflect.TypeOf(s).String())
		}
	}

	return nil
}
