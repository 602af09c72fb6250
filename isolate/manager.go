package isolate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/utkarsh5026/isopool/internal/algorithms"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ContextPool creates and destroys execution contexts. Contexts are never
// handed out twice; what the pool shares between concurrent batches is only
// its bookkeeping and its live-context budget.
type ContextPool struct {
	registry *Registry
	logger   *slog.Logger
	limit    int
	budget   *semaphore.Weighted
	limiter  *rate.Limiter
	backoff  algorithms.Backoff
	attempts int

	mu   sync.Mutex
	live map[string]*ExecutionContext
}

// NewContextPool creates a pool that builds contexts from reg.
//
// Relevant options: WithMaxContexts, WithSpawnRate, WithAllocRetry,
// WithAllocBackoff, WithLogger.
func NewContextPool(reg *Registry, opts ...Option) *ContextPool {
	return newContextPool(reg, newConfig(opts...))
}

func newContextPool(reg *Registry, cfg *config) *ContextPool {
	p := &ContextPool{
		registry: reg,
		logger:   cfg.logger,
		limiter:  cfg.spawnLimiter,
		backoff:  algorithms.NewBackoff(cfg.backoffType, cfg.allocDelay, cfg.allocMaxDelay, cfg.allocJitter),
		attempts: max(cfg.allocAttempts, 1),
		live:     make(map[string]*ExecutionContext),
	}
	if cfg.maxContexts > 0 {
		p.limit = cfg.maxContexts
		p.budget = semaphore.NewWeighted(int64(cfg.maxContexts))
	}
	return p
}

// Acquire creates n fresh contexts. If the pool cannot provide all of them it
// releases the ones it already created and returns a *PoolExhaustionError.
func (p *ContextPool) Acquire(ctx context.Context, n int) ([]*ExecutionContext, error) {
	if n <= 0 {
		return []*ExecutionContext{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, p.exhausted(n, 0, err)
	}
	if p.limit > 0 && n > p.limit {
		return nil, p.exhausted(n, 0, fmt.Errorf("batch needs %d contexts", n))
	}

	if err := p.reserve(ctx, n); err != nil {
		return nil, p.exhausted(n, 0, err)
	}

	contexts := make([]*ExecutionContext, 0, n)
	for len(contexts) < n {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				created := len(contexts)
				p.unreserve(n - created)
				return nil, p.exhausted(n, created, errors.Join(err, p.Release(contexts)))
			}
		}
		contexts = append(contexts, p.create())
	}

	return contexts, nil
}

// Release destroys every given context and returns its budget. Releasing a
// context twice is reported with ErrContextReleased; the remaining contexts
// are still released.
func (p *ContextPool) Release(contexts []*ExecutionContext) error {
	var errs []error
	released := 0

	p.mu.Lock()
	for _, ec := range contexts {
		if ec == nil {
			continue
		}
		if _, owned := p.live[ec.id]; !owned {
			errs = append(errs, fmt.Errorf("context %s is not live in this pool: %w", ec.id, ErrContextReleased))
			continue
		}
		if err := ec.destroy(); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(p.live, ec.id)
		released++
	}
	p.mu.Unlock()

	p.unreserve(released)
	contextsDestroyed.Add(float64(released))
	contextsLive.Sub(float64(released))
	if released > 0 {
		p.logger.Debug("contexts released", "count", released)
	}

	return errors.Join(errs...)
}

// Live returns the number of contexts created and not yet released.
func (p *ContextPool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// Limit returns the live-context budget, or 0 when unbounded.
func (p *ContextPool) Limit() int {
	return p.limit
}

func (p *ContextPool) create() *ExecutionContext {
	ec := newExecutionContext(p.registry, p.logger)

	p.mu.Lock()
	p.live[ec.id] = ec
	p.mu.Unlock()

	contextsCreated.Inc()
	contextsLive.Inc()
	ec.logger.Debug("context created")
	return ec
}

// reserve takes n units of the live-context budget, waiting for other
// batches to release contexts when allocation retries are configured.
func (p *ContextPool) reserve(ctx context.Context, n int) error {
	if p.budget == nil {
		return nil
	}

	for attempt := 0; ; attempt++ {
		if p.budget.TryAcquire(int64(n)) {
			return nil
		}
		if attempt+1 >= p.attempts {
			return fmt.Errorf("%d of %d contexts in use", p.Live(), p.limit)
		}

		delay := p.backoff.Delay(attempt)
		p.logger.Debug("context budget in use, retrying", "attempt", attempt+1, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (p *ContextPool) unreserve(n int) {
	if p.budget != nil && n > 0 {
		p.budget.Release(int64(n))
	}
}

func (p *ContextPool) exhausted(requested, created int, err error) *PoolExhaustionError {
	poolExhaustions.Inc()
	p.logger.Error("context pool exhausted", "requested", requested, "created", created, "limit", p.limit, "error", err)
	return &PoolExhaustionError{
		Requested: requested,
		Created:   created,
		Limit:     p.limit,
		Err:       err,
	}
}
