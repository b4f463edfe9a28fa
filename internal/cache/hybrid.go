package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/agkloop/advanced-caching/internal/common/errors"
)

// HybridStore composes a fast local L1 with a slower durable L2. Reads prefer
// L1 and promote L2 hits into L1; L1 residency is bounded by l1TTL rather
// than the original write TTL. L2 is the source of truth: writes go through
// it first and SetIfNotExists is decided by its atomic primitive.
//
// The store owns no entries itself; deleting a key removes it from both
// layers, and a per-key delete generation prevents an in-flight promotion
// from resurrecting a key that was deleted concurrently.
type HybridStore struct {
	l1    Storage
	l2    Storage
	l1TTL time.Duration

	// mu orders promotions against deletes. delGen only grows for keys that
	// have been deleted at least once; the footprint is proportional to the
	// distinct deleted keys, which matches the engine's no-eviction posture.
	mu     sync.Mutex
	delGen map[string]uint64
}

// NewHybridStore composes l1 and l2. l1TTL bounds how long promoted values
// stay resident in L1.
func NewHybridStore(l1, l2 Storage, l1TTL time.Duration) (*HybridStore, error) {
	if err := ValidateStorage(l1); err != nil {
		return nil, err
	}
	if err := ValidateStorage(l2); err != nil {
		return nil, err
	}
	if l1TTL <= 0 {
		return nil, errors.ValidationError("l1 ttl must be positive")
	}

	return &HybridStore{
		l1:     l1,
		l2:     l2,
		l1TTL:  l1TTL,
		delGen: make(map[string]uint64),
	}, nil
}

// generation returns the delete generation observed for key.
func (h *HybridStore) generation(key string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.delGen[key]
}

// promote writes an L2 hit into L1 unless the key was deleted since gen was
// observed.
func (h *HybridStore) promote(ctx context.Context, key string, value interface{}, gen uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.delGen[key] != gen {
		// A delete happened after we read L2; writing now would resurrect it.
		return
	}
	_ = h.l1.Set(ctx, key, value, h.l1TTL)
}

// l1WriteTTL caps the L1 residency of a written value so L1 never reports
// fresher data than L2 for longer than l1TTL.
func (h *HybridStore) l1WriteTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > h.l1TTL {
		return h.l1TTL
	}
	return ttl
}

// Get tries L1 first, then L2 with promotion on a hit.
func (h *HybridStore) Get(ctx context.Context, key string) (interface{}, bool) {
	if value, ok := h.l1.Get(ctx, key); ok {
		return value, true
	}

	gen := h.generation(key)
	value, ok := h.l2.Get(ctx, key)
	if !ok {
		return nil, false
	}

	h.promote(ctx, key, value, gen)
	return value, true
}

// Set writes through both layers, L2 first as the source of truth.
func (h *HybridStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	var result *multierror.Error

	if err := h.l2.Set(ctx, key, value, ttl); err != nil {
		result = multierror.Append(result, err)
	}
	if err := h.l1.Set(ctx, key, value, h.l1WriteTTL(ttl)); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

// Delete removes the key from both layers. A partial failure is surfaced, not
// swallowed, so one layer never silently keeps stale data.
//
// L2 is deleted first. A reader that saw the old L2 value then either
// promotes before the L1 clear, which wipes it, or observes the bumped
// generation and skips, so a promotion can never outlive the delete.
func (h *HybridStore) Delete(ctx context.Context, key string) error {
	err2 := h.l2.Delete(ctx, key)

	h.mu.Lock()
	h.delGen[key]++
	err1 := h.l1.Delete(ctx, key)
	h.mu.Unlock()

	var result *multierror.Error
	if err1 != nil {
		result = multierror.Append(result, errors.BackendError("l1 delete failed", err1).WithContext("key", key))
	}
	if err2 != nil {
		result = multierror.Append(result, errors.BackendError("l2 delete failed", err2).WithContext("key", key))
	}
	return result.ErrorOrNil()
}

// Exists reports whether a fresh entry is stored in either layer.
func (h *HybridStore) Exists(ctx context.Context, key string) (bool, error) {
	if ok, err := h.l1.Exists(ctx, key); err == nil && ok {
		return true, nil
	}
	return h.l2.Exists(ctx, key)
}

// SetIfNotExists is decided by L2's atomic primitive; L1 is populated only
// after the win is known so the two layers cannot disagree about the winner.
func (h *HybridStore) SetIfNotExists(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	won, err := h.l2.SetIfNotExists(ctx, key, value, ttl)
	if err != nil || !won {
		return won, err
	}

	_ = h.l1.Set(ctx, key, value, h.l1WriteTTL(ttl))
	return true, nil
}

// GetEntry prefers L1 and falls back to L2. An L2 hit is not promoted:
// copying the entry into L1 would either cap or extend its freshness
// metadata, and the coordinator reading entries depends on it being exact.
func (h *HybridStore) GetEntry(ctx context.Context, key string) (*Entry, bool) {
	if entry, ok := h.l1.GetEntry(ctx, key); ok {
		return entry, true
	}
	return h.l2.GetEntry(ctx, key)
}

// SetEntry writes the raw entry through both layers unchanged.
func (h *HybridStore) SetEntry(ctx context.Context, key string, entry *Entry, ttlOverride *time.Duration) error {
	var result *multierror.Error

	if err := h.l2.SetEntry(ctx, key, entry, ttlOverride); err != nil {
		result = multierror.Append(result, err)
	}
	if err := h.l1.SetEntry(ctx, key, entry, ttlOverride); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

// CleanupExpired reclaims both layers and returns the combined count.
func (h *HybridStore) CleanupExpired(ctx context.Context) (int, error) {
	var result *multierror.Error
	total := 0

	if n, err := h.l1.CleanupExpired(ctx); err != nil {
		result = multierror.Append(result, err)
	} else {
		total += n
	}
	if n, err := h.l2.CleanupExpired(ctx); err != nil {
		result = multierror.Append(result, err)
	} else {
		total += n
	}

	return total, result.ErrorOrNil()
}

// Ensure HybridStore implements Storage
var _ Storage = (*HybridStore)(nil)
