package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agkloop/advanced-caching/internal/cache"
)

func TestNewEntry(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("positive ttl sets freshness window", func(t *testing.T) {
		entry := cache.NewEntry("v", time.Minute, now)

		assert.Equal(t, "v", entry.Value)
		assert.Equal(t, now, entry.CreatedAt)
		assert.Equal(t, now.Add(time.Minute), entry.FreshUntil)
	})

	t.Run("zero ttl never expires", func(t *testing.T) {
		entry := cache.NewEntry("v", 0, now)

		assert.True(t, entry.FreshUntil.IsZero())
		assert.True(t, entry.IsFresh(now.Add(100*365*24*time.Hour)))
	})

	t.Run("negative ttl never expires", func(t *testing.T) {
		entry := cache.NewEntry("v", -time.Second, now)

		assert.True(t, entry.FreshUntil.IsZero())
		assert.True(t, entry.IsFresh(now.Add(time.Hour)))
	})
}

func TestEntry_IsFresh_Boundary(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	entry := cache.NewEntry("v", time.Minute, now)

	t.Run("fresh just before expiry", func(t *testing.T) {
		assert.True(t, entry.IsFresh(entry.FreshUntil.Add(-time.Nanosecond)))
	})

	t.Run("expiry is inclusive", func(t *testing.T) {
		assert.False(t, entry.IsFresh(entry.FreshUntil))
	})

	t.Run("stale after expiry", func(t *testing.T) {
		assert.False(t, entry.IsFresh(entry.FreshUntil.Add(time.Second)))
	})
}

func TestEntry_Age(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	entry := cache.NewEntry("v", time.Minute, now)

	assert.Equal(t, 90*time.Second, entry.Age(now.Add(90*time.Second)))
}

func TestEntry_Clone(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	entry := cache.NewEntry("v", time.Minute, now)

	clone := entry.Clone()
	clone.Value = "mutated"

	assert.Equal(t, "v", entry.Value)
	assert.Equal(t, entry.FreshUntil, clone.FreshUntil)
}
