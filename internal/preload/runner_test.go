package preload_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agkloop/advanced-caching/internal/cache"
	apperrors "github.com/agkloop/advanced-caching/internal/common/errors"
	"github.com/agkloop/advanced-caching/internal/preload"
	"github.com/agkloop/advanced-caching/internal/testutil"
)

func TestRunner_RegisterValidation(t *testing.T) {
	runner := preload.NewRunner()
	store := cache.NewMemoryStore()
	loader := func(ctx context.Context) (interface{}, error) { return "v", nil }

	tests := []struct {
		name     string
		opts     preload.Options
		wantType apperrors.ErrorType
	}{
		{
			name:     "empty key",
			opts:     preload.Options{Interval: time.Minute, Store: store, Loader: loader},
			wantType: apperrors.ErrTypeValidation,
		},
		{
			name:     "non-positive interval",
			opts:     preload.Options{Key: "k", Store: store, Loader: loader},
			wantType: apperrors.ErrTypeValidation,
		},
		{
			name:     "nil loader",
			opts:     preload.Options{Key: "k", Interval: time.Minute, Store: store},
			wantType: apperrors.ErrTypeValidation,
		},
		{
			name:     "nil store",
			opts:     preload.Options{Key: "k", Interval: time.Minute, Loader: loader},
			wantType: apperrors.ErrTypeContract,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runner.Register(tt.opts)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, tt.wantType))
		})
	}
}

func TestRunner_RunImmediately(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	store := cache.NewMemoryStore(cache.WithMemoryClock(clock))
	runner := preload.NewRunner()
	defer runner.Stop(false)

	err := runner.Register(preload.Options{
		Key:            "rates",
		Interval:       time.Minute,
		RunImmediately: true,
		Store:          store,
		Loader: func(ctx context.Context) (interface{}, error) {
			return "snapshot-1", nil
		},
	})
	require.NoError(t, err)

	// The value is available before the scheduler even starts.
	value, ok := store.Get(context.Background(), "rates")
	require.True(t, ok)
	assert.Equal(t, "snapshot-1", value)

	t.Run("ttl defaults to twice the interval", func(t *testing.T) {
		entry, ok := store.GetEntry(context.Background(), "rates")
		require.True(t, ok)
		assert.True(t, clock.Now().Add(2*time.Minute).Equal(entry.FreshUntil))
	})
}

func TestRunner_ExplicitTTL(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	store := cache.NewMemoryStore(cache.WithMemoryClock(clock))
	runner := preload.NewRunner()
	defer runner.Stop(false)

	err := runner.Register(preload.Options{
		Key:            "rates",
		Interval:       time.Minute,
		TTL:            time.Hour,
		RunImmediately: true,
		Store:          store,
		Loader: func(ctx context.Context) (interface{}, error) {
			return "snapshot-1", nil
		},
	})
	require.NoError(t, err)

	entry, ok := store.GetEntry(context.Background(), "rates")
	require.True(t, ok)
	assert.True(t, clock.Now().Add(time.Hour).Equal(entry.FreshUntil))
}

func TestRunner_LoaderFailureKeepsLastValue(t *testing.T) {
	store := cache.NewMemoryStore()
	runner := preload.NewRunner()
	defer runner.Stop(false)

	require.NoError(t, store.Set(context.Background(), "rates", "last-good", time.Hour))

	var reported int32
	loaderErr := errors.New("upstream unavailable")

	err := runner.Register(preload.Options{
		Key:            "rates",
		Interval:       time.Minute,
		RunImmediately: true,
		Store:          store,
		Loader: func(ctx context.Context) (interface{}, error) {
			return nil, loaderErr
		},
		OnError: func(err error) {
			atomic.AddInt32(&reported, 1)
			assert.ErrorIs(t, err, loaderErr)
		},
	})
	require.NoError(t, err)

	// The failing run reported once and left the previous value in place.
	assert.EqualValues(t, 1, atomic.LoadInt32(&reported))

	value, ok := store.Get(context.Background(), "rates")
	require.True(t, ok)
	assert.Equal(t, "last-good", value)
}

func TestRunner_WriteFailureReported(t *testing.T) {
	flaky := testutil.NewFlakyStore(cache.NewMemoryStore())
	writeErr := errors.New("disk full")
	flaky.FailWith("Set", writeErr)

	runner := preload.NewRunner()
	defer runner.Stop(false)

	var reported int32
	err := runner.Register(preload.Options{
		Key:            "rates",
		Interval:       time.Minute,
		RunImmediately: true,
		Store:          flaky,
		Loader: func(ctx context.Context) (interface{}, error) {
			return "v", nil
		},
		OnError: func(err error) {
			atomic.AddInt32(&reported, 1)
			assert.ErrorIs(t, err, writeErr)
		},
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&reported))
}

func TestRunner_ReRegisterReplaces(t *testing.T) {
	store := cache.NewMemoryStore()
	runner := preload.NewRunner()
	defer runner.Stop(false)

	register := func(value string) {
		err := runner.Register(preload.Options{
			Key:            "rates",
			Interval:       time.Minute,
			RunImmediately: true,
			Store:          store,
			Loader: func(ctx context.Context) (interface{}, error) {
				return value, nil
			},
		})
		require.NoError(t, err)
	}

	register("first")
	register("second")

	value, ok := store.Get(context.Background(), "rates")
	require.True(t, ok)
	assert.Equal(t, "second", value)
}

func TestRunner_Deregister(t *testing.T) {
	store := cache.NewMemoryStore()
	runner := preload.NewRunner()
	defer runner.Stop(false)

	err := runner.Register(preload.Options{
		Key:      "rates",
		Interval: time.Minute,
		Store:    store,
		Loader: func(ctx context.Context) (interface{}, error) {
			return "v", nil
		},
	})
	require.NoError(t, err)

	runner.Deregister("rates")

	t.Run("unknown key is a no-op", func(t *testing.T) {
		runner.Deregister("never-registered")
	})
}

func TestRunner_PeriodicRun(t *testing.T) {
	store := cache.NewMemoryStore()
	runner := preload.NewRunner()

	var runs int32
	err := runner.Register(preload.Options{
		Key:      "rates",
		Interval: time.Second,
		Store:    store,
		Loader: func(ctx context.Context) (interface{}, error) {
			return atomic.AddInt32(&runs, 1), nil
		},
	})
	require.NoError(t, err)

	runner.Start()
	defer runner.Stop(true)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) >= 1
	}, 3*time.Second, 50*time.Millisecond)

	_, ok := store.Get(context.Background(), "rates")
	assert.True(t, ok)
}

func TestRunner_ImmediateRunSerializedWithTicks(t *testing.T) {
	store := cache.NewMemoryStore()
	runner := preload.NewRunner()
	runner.Start()
	defer runner.Stop(true)

	// The loader outlasts its own interval, so the first scheduled tick fires
	// while the immediate run is still going. It must wait, not overlap.
	var active, overlap, runs int32
	err := runner.Register(preload.Options{
		Key:            "rates",
		Interval:       time.Second,
		RunImmediately: true,
		Store:          store,
		Loader: func(ctx context.Context) (interface{}, error) {
			if atomic.AddInt32(&active, 1) > 1 {
				atomic.StoreInt32(&overlap, 1)
			}
			time.Sleep(1500 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			atomic.AddInt32(&runs, 1)
			return "v", nil
		},
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) >= 2
	}, 6*time.Second, 50*time.Millisecond)

	assert.EqualValues(t, 0, atomic.LoadInt32(&overlap), "loader ran concurrently with itself")
}

func TestRunner_StopWaitsForInFlightRun(t *testing.T) {
	store := cache.NewMemoryStore()
	runner := preload.NewRunner()

	started := make(chan struct{})
	var once sync.Once
	var finished int32
	err := runner.Register(preload.Options{
		Key:      "rates",
		Interval: time.Second,
		Store:    store,
		Loader: func(ctx context.Context) (interface{}, error) {
			once.Do(func() { close(started) })
			time.Sleep(200 * time.Millisecond)
			atomic.StoreInt32(&finished, 1)
			return "v", nil
		},
	})
	require.NoError(t, err)

	runner.Start()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("loader never ran")
	}

	runner.Stop(true)
	assert.EqualValues(t, 1, atomic.LoadInt32(&finished))
}

func TestRunner_StartIsIdempotent(t *testing.T) {
	runner := preload.NewRunner()
	runner.Start()
	runner.Start()
	runner.Stop(false)
}

func TestDefaultRunner(t *testing.T) {
	first := preload.Default()
	assert.Same(t, first, preload.Default())

	preload.Shutdown(true)

	// Shutdown resets the process-scoped runner.
	assert.NotSame(t, first, preload.Default())
	preload.Shutdown(false)
}
