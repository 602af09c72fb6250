package isolate

import (
	"log/slog"
	"time"

	"github.com/utkarsh5026/isopool/internal/algorithms"
	"golang.org/x/time/rate"
)

// DefaultMaxContexts is the default live-context budget of a ContextPool.
// Every running task holds a locked OS thread, and the Go runtime aborts the
// process once it exceeds its thread limit (10000 by default), so oversized
// batches must fail with a PoolExhaustionError well before that.
const DefaultMaxContexts = 4096

// Option is a functional option for configuring an Executor or ContextPool.
type Option func(*config)

type config struct {
	mode             Mode
	logger           *slog.Logger
	maxContexts      int
	spawnLimiter     *rate.Limiter
	allocAttempts    int
	allocDelay       time.Duration
	allocMaxDelay    time.Duration
	allocJitter      float64
	backoffType      algorithms.BackoffType
	dedicatedThreads bool
	pinCPU           bool
	onTaskStart      func(index int, spec TaskSpec)
	onTaskEnd        func(result TaskResult)
	pool             *ContextPool
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		mode:             FailFast,
		logger:           discardLogger(),
		maxContexts:      DefaultMaxContexts,
		allocAttempts:    1,
		allocDelay:       10 * time.Millisecond,
		allocMaxDelay:    time.Second,
		allocJitter:      0.2,
		backoffType:      algorithms.BackoffJittered,
		dedicatedThreads: true,
	}

	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithMode selects how task failures are reported. Default: FailFast.
func WithMode(mode Mode) Option {
	return func(cfg *config) {
		cfg.mode = mode
	}
}

// WithLogger sets the logger used for context lifecycle and task events.
// By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithMaxContexts sets how many contexts may be alive at once across all
// batches served by the pool. A negative value removes the budget.
// Default: DefaultMaxContexts.
func WithMaxContexts(n int) Option {
	return func(cfg *config) {
		if n != 0 {
			cfg.maxContexts = n
		}
	}
}

// WithSpawnRate limits how fast the pool creates contexts.
// perSecond is the sustained creation rate and burst the number of contexts
// that may be created back to back.
//
// Example:
//
//	WithSpawnRate(500, 64) // at most 500 contexts/sec, bursts of 64
func WithSpawnRate(perSecond float64, burst int) Option {
	return func(cfg *config) {
		if perSecond > 0 && burst > 0 {
			cfg.spawnLimiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithAllocRetry makes the pool wait for other batches to release contexts
// when its budget is in use. attempts is the total number of tries; the wait
// between tries starts at initialDelay and grows exponentially with jitter.
// Without this option a full budget fails the batch immediately.
func WithAllocRetry(attempts int, initialDelay time.Duration) Option {
	return func(cfg *config) {
		if attempts > 0 {
			cfg.allocAttempts = attempts
		}
		if initialDelay > 0 {
			cfg.allocDelay = initialDelay
		}
	}
}

// WithAllocBackoff shapes the waits between allocation retries. Each wait
// doubles up to maxDelay and is scaled by a random factor in
// [1-jitter, 1+jitter]. A jitter of 0 gives plain exponential backoff.
// Default: maxDelay of one second, jitter 0.2.
func WithAllocBackoff(maxDelay time.Duration, jitter float64) Option {
	return func(cfg *config) {
		if maxDelay > 0 {
			cfg.allocMaxDelay = maxDelay
		}
		if jitter <= 0 {
			cfg.allocJitter = 0
			cfg.backoffType = algorithms.BackoffExponential
			return
		}
		cfg.allocJitter = jitter
		cfg.backoffType = algorithms.BackoffJittered
	}
}

// WithDedicatedThreads controls whether every task goroutine is locked to its
// own OS thread for the duration of the task. Default: true.
func WithDedicatedThreads(enabled bool) Option {
	return func(cfg *config) {
		cfg.dedicatedThreads = enabled
	}
}

// WithCPUPinning pins each dedicated worker thread to a single core, chosen
// round-robin by task index. It has no effect without dedicated threads or
// on platforms without affinity support.
func WithCPUPinning(enabled bool) Option {
	return func(cfg *config) {
		cfg.pinCPU = enabled
	}
}

// WithOnTaskStart registers a hook called on the worker thread before the
// task enters its context.
func WithOnTaskStart(fn func(index int, spec TaskSpec)) Option {
	return func(cfg *config) {
		cfg.onTaskStart = fn
	}
}

// WithOnTaskEnd registers a hook called on the worker thread after the task
// has left its context, with the task's final result.
func WithOnTaskEnd(fn func(result TaskResult)) Option {
	return func(cfg *config) {
		cfg.onTaskEnd = fn
	}
}

// WithContextPool makes an Executor allocate from an existing pool, so that
// several executors share one live-context budget. Pool options passed to the
// same constructor are then ignored.
func WithContextPool(pool *ContextPool) Option {
	return func(cfg *config) {
		cfg.pool = pool
	}
}
