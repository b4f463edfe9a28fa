package cache_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agkloop/advanced-caching/internal/cache"
	apperrors "github.com/agkloop/advanced-caching/internal/common/errors"
	"github.com/agkloop/advanced-caching/internal/testutil"
)

func TestNewTTLCache_Validation(t *testing.T) {
	_, err := cache.NewTTLCache(nil, time.Minute)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeContract))
}

func TestTTLCache_Get(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	store := cache.NewMemoryStore(cache.WithMemoryClock(clock))
	c, err := cache.NewTTLCache(store, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	var calls int32
	producer := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "produced", nil
	}

	t.Run("miss invokes the producer and stores the result", func(t *testing.T) {
		value, err := c.Get(ctx, "k", producer)
		require.NoError(t, err)
		assert.Equal(t, "produced", value)
		assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

		stored, ok := store.Get(ctx, "k")
		require.True(t, ok)
		assert.Equal(t, "produced", stored)
	})

	t.Run("fresh hit skips the producer", func(t *testing.T) {
		value, err := c.Get(ctx, "k", producer)
		require.NoError(t, err)
		assert.Equal(t, "produced", value)
		assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	})

	t.Run("expiry brings the producer back", func(t *testing.T) {
		clock.Advance(time.Minute)

		value, err := c.Get(ctx, "k", producer)
		require.NoError(t, err)
		assert.Equal(t, "produced", value)
		assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	})
}

func TestTTLCache_ProducerError(t *testing.T) {
	store := cache.NewMemoryStore()
	c, err := cache.NewTTLCache(store, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	producerErr := errors.New("upstream unavailable")
	value, err := c.Get(ctx, "k", func(ctx context.Context) (interface{}, error) {
		return nil, producerErr
	})

	// The error propagates unchanged and nothing is cached.
	assert.ErrorIs(t, err, producerErr)
	assert.Nil(t, value)

	_, ok := store.Get(ctx, "k")
	assert.False(t, ok)
}

func TestTTLCache_WriteBackFailure(t *testing.T) {
	flaky := testutil.NewFlakyStore(cache.NewMemoryStore())
	flaky.FailWith("Set", errors.New("disk full"))

	c, err := cache.NewTTLCache(flaky, time.Minute)
	require.NoError(t, err)

	value, err := c.Get(context.Background(), "k", func(ctx context.Context) (interface{}, error) {
		return "produced", nil
	})

	// The computed value comes back alongside the surfaced backend error.
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeBackend))
	assert.Equal(t, "produced", value)
}

func TestTTLCache_Invalidate(t *testing.T) {
	store := cache.NewMemoryStore()
	c, err := cache.NewTTLCache(store, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	var calls int32
	producer := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "produced", nil
	}

	_, err = c.Get(ctx, "k", producer)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, "k"))

	_, err = c.Get(ctx, "k", producer)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}
