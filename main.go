package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agkloop/advanced-caching/internal/cache"
	"github.com/agkloop/advanced-caching/internal/circuitbreaker"
	"github.com/agkloop/advanced-caching/internal/common/logging"
	"github.com/agkloop/advanced-caching/internal/config"
	"github.com/agkloop/advanced-caching/internal/preload"
)

func main() {
	// Load .env if present; real environment variables take precedence.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logging.InitGlobalLogger()
	defer logging.MustSync()
	logger := logging.GetGlobalLogger()

	store, cleanup, err := buildStore(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to build cache backend: %v", err)
	}
	defer cleanup()

	logger.Info("cache backend ready", logging.String("backend", string(cfg.CacheBackend)))

	// SWR pattern over the configured backend.
	swr, err := cache.NewSWRCache(store, cache.SWRConfig{
		TTL:        cfg.SWRTTL,
		StaleTTL:   cfg.SWRStaleTTL,
		LockTTL:    cfg.SWRLockTTL,
		EnableLock: cfg.SWREnableLock,
		OnRefreshError: func(key string, err error) {
			logger.Warn("swr refresh degraded to stale value", logging.String("key", key), logging.Err(err))
		},
	})
	if err != nil {
		log.Fatalf("Failed to build SWR cache: %v", err)
	}

	// Background preload keeps a demo key warm independent of readers.
	runner := preload.NewRunner(preload.WithLogger(logger))
	err = runner.Register(preload.Options{
		Key:            "engine:started-at",
		Interval:       30 * time.Second,
		RunImmediately: true,
		Store:          store,
		Loader: func(ctx context.Context) (interface{}, error) {
			return time.Now().Format(time.RFC3339), nil
		},
		OnError: func(err error) {
			logger.Warn("preload tick failed, serving last known good", logging.Err(err))
		},
	})
	if err != nil {
		log.Fatalf("Failed to register preload loader: %v", err)
	}
	runner.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	value, err := swr.Get(ctx, "demo:greeting", func(ctx context.Context) (interface{}, error) {
		return "hello from the producer", nil
	})
	if err != nil {
		logger.Error("demo read failed", err)
	} else {
		logger.Info("demo read", logging.Field{Key: "value", Value: value})
	}

	fmt.Println("caching engine running; press Ctrl+C to stop")
	<-ctx.Done()

	logger.Info("shutting down")
	runner.Stop(true)
	swr.Wait()
}

// buildStore assembles the configured backend. The returned cleanup releases
// whatever the backend holds open.
func buildStore(cfg *config.Config, logger logging.Logger) (cache.Storage, func(), error) {
	switch cfg.CacheBackend {
	case config.BackendMemory:
		store := newMemoryStore(cfg)
		return store, store.Stop, nil

	case config.BackendRedis:
		store, err := newRemoteStore(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	case config.BackendHybrid:
		l1 := newMemoryStore(cfg)
		l2, err := newRemoteStore(cfg, logger)
		if err != nil {
			l1.Stop()
			return nil, nil, err
		}
		hybrid, err := cache.NewHybridStore(l1, l2, cfg.L1TTL)
		if err != nil {
			l1.Stop()
			_ = l2.Close()
			return nil, nil, err
		}
		return hybrid, func() {
			l1.Stop()
			_ = l2.Close()
		}, nil
	}

	return nil, nil, fmt.Errorf("unknown cache backend: %s", cfg.CacheBackend)
}

func newMemoryStore(cfg *config.Config) *cache.MemoryStore {
	opts := []cache.MemoryOption{}
	if cfg.CleanupInterval > 0 {
		opts = append(opts, cache.WithJanitor(cfg.CleanupInterval))
	}
	return cache.NewMemoryStore(opts...)
}

func newRemoteStore(cfg *config.Config, logger logging.Logger) (*cache.RemoteStore, error) {
	client, err := cache.DialRemote(&cache.RemoteConfig{
		Address:  cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	})
	if err != nil {
		return nil, err
	}

	opts := []cache.RemoteOption{
		cache.WithStaleRetention(cfg.SWRStaleTTL),
	}
	if cfg.BreakerEnabled {
		breaker := circuitbreaker.New("redis-cache", circuitbreaker.DefaultConfig(), logger)
		opts = append(opts, cache.WithBreaker(breaker))
	}

	return cache.NewRemoteStore(client, cfg.CachePrefix, opts...), nil
}
