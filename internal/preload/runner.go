// Package preload drives a Storage from the outside: registered loaders run
// on a fixed period and write their result into the cache, independent of any
// reader. Readers simply Get the same key on the same store and are unaware
// the runner exists.
//
// A failing loader degrades to "serve last known good": the error goes to the
// registration's OnError callback and the previously stored value is left
// untouched.
package preload

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agkloop/advanced-caching/internal/cache"
	"github.com/agkloop/advanced-caching/internal/common/errors"
	"github.com/agkloop/advanced-caching/internal/common/logging"
)

// Loader produces the value to cache on every tick.
type Loader func(ctx context.Context) (interface{}, error)

// Options binds one background loader registration.
type Options struct {
	// Key is the cache key the loader writes. Registering the same key again
	// replaces the previous job.
	Key string

	// Interval is how often the loader runs.
	Interval time.Duration

	// TTL is the freshness window written on every successful tick. Defaults
	// to twice the interval so a reader never misses between runs, even when
	// one run is delayed by up to its own interval.
	TTL time.Duration

	// RunImmediately invokes the loader synchronously at registration time
	// instead of waiting for the first tick.
	RunImmediately bool

	// OnError receives loader and write failures. Invoked once per failing
	// tick.
	OnError func(error)

	// Store is the Storage the loader writes into.
	Store cache.Storage

	// Loader produces the value.
	Loader Loader
}

// Runner owns one cron scheduler for any number of registered loaders. Runs
// for the same key never overlap - a delayed tick waits for the previous one
// to finish - while different keys run independently.
type Runner struct {
	cron   *cron.Cron
	logger logging.Logger

	mu      sync.Mutex
	jobs    map[string]cron.EntryID
	started bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger overrides the logger.
func WithLogger(logger logging.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a runner. Call Start to begin scheduling and Stop to shut
// it down.
func NewRunner(opts ...RunnerOption) *Runner {
	runner := &Runner{
		logger: logging.GetGlobalLogger(),
		jobs:   make(map[string]cron.EntryID),
	}

	for _, opt := range opts {
		opt(runner)
	}

	// DelayIfStillRunning serializes ticks per job, which is per key.
	runner.cron = cron.New(cron.WithChain(
		cron.DelayIfStillRunning(cronLogger{runner.logger}),
	))

	return runner
}

// Register binds a loader to a key and schedules it. The registration is
// validated before the store is accepted.
func (r *Runner) Register(opts Options) error {
	if opts.Key == "" {
		return errors.ValidationError("preload key must not be empty")
	}
	if opts.Interval <= 0 {
		return errors.ValidationError("preload interval must be positive").WithContext("key", opts.Key)
	}
	if opts.Loader == nil {
		return errors.ValidationError("preload loader must not be nil").WithContext("key", opts.Key)
	}
	if err := cache.ValidateStorage(opts.Store); err != nil {
		return err
	}

	if opts.TTL <= 0 {
		opts.TTL = 2 * opts.Interval
	}

	r.mu.Lock()
	if id, ok := r.jobs[opts.Key]; ok {
		r.cron.Remove(id)
	}
	id := r.cron.Schedule(cron.Every(opts.Interval), cron.FuncJob(func() {
		r.runOnce(opts)
	}))
	r.jobs[opts.Key] = id
	r.mu.Unlock()

	r.logger.Info("preload loader registered",
		logging.String("key", opts.Key),
		logging.Duration("interval", opts.Interval),
		logging.Duration("ttl", opts.TTL),
	)

	if opts.RunImmediately {
		// Run through the wrapped job the scheduler itself invokes, so the
		// immediate run holds the same per-key serialization as scheduled
		// ticks and cannot overlap the first one.
		if job := r.cron.Entry(id).WrappedJob; job != nil {
			job.Run()
		}
	}

	return nil
}

// Deregister removes the loader for key. Deregistering an unknown key is a
// no-op.
func (r *Runner) Deregister(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.jobs[key]; ok {
		r.cron.Remove(id)
		delete(r.jobs, key)
	}
}

// Start begins scheduling registered loaders. Calling Start twice is a no-op.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.cron.Start()
	r.started = true
}

// Stop shuts the scheduler down. With wait true it blocks until the current
// tick of every key has finished; with wait false it returns immediately.
// Already-cached values are left untouched either way.
func (r *Runner) Stop(wait bool) {
	r.mu.Lock()
	r.started = false
	ctx := r.cron.Stop()
	r.mu.Unlock()

	if wait {
		<-ctx.Done()
	}
}

// runOnce executes one tick for a registration.
func (r *Runner) runOnce(opts Options) {
	ctx := context.Background()
	start := time.Now()

	value, err := opts.Loader(ctx)
	if err != nil {
		r.logger.Error("preload refresh failed", err, logging.String("key", opts.Key))
		if opts.OnError != nil {
			opts.OnError(err)
		}
		return
	}

	if err := opts.Store.Set(ctx, opts.Key, value, opts.TTL); err != nil {
		r.logger.Error("preload write failed", err, logging.String("key", opts.Key))
		if opts.OnError != nil {
			opts.OnError(err)
		}
		return
	}

	r.logger.Debug("preload refresh complete",
		logging.String("key", opts.Key),
		logging.Duration("duration", time.Since(start)),
	)
}

// cronLogger adapts our Logger to cron's logging interface.
type cronLogger struct {
	logger logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Debug(msg, logging.Field{Key: "details", Value: keysAndValues})
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.Error(msg, err, logging.Field{Key: "details", Value: keysAndValues})
}

// Process-scoped default runner. Prefer passing a Runner explicitly; the
// default exists for call sites that mirror a process-wide scheduler.
var (
	defaultMu     sync.Mutex
	defaultRunner *Runner
)

// Default returns the process-scoped runner, creating and starting it on
// first use.
func Default() *Runner {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRunner == nil {
		defaultRunner = NewRunner()
		defaultRunner.Start()
	}
	return defaultRunner
}

// Shutdown stops the process-scoped runner, if it was ever created. The next
// Default call creates a fresh one.
func Shutdown(wait bool) {
	defaultMu.Lock()
	runner := defaultRunner
	defaultRunner = nil
	defaultMu.Unlock()

	if runner != nil {
		runner.Stop(wait)
	}
}
