package isolate

import (
	"context"
	"errors"
	"time"
)

// Executor runs batches of tasks, each task in a fresh ExecutionContext on
// its own worker. Contexts are created for a batch and destroyed when the
// batch returns; nothing carries over between calls.
//
// An Executor is safe for concurrent use. Concurrent batches share the live
// context budget of the underlying ContextPool.
type Executor struct {
	pool *ContextPool
	cfg  *config
}

// NewExecutor creates an executor for the namespaces registered in reg.
// A pool passed with WithContextPool must have been built from the same
// registry; NewExecutor panics otherwise.
func NewExecutor(reg *Registry, opts ...Option) *Executor {
	cfg := newConfig(opts...)

	pool := cfg.pool
	if pool == nil {
		pool = newContextPool(reg, cfg)
	} else if reg != nil && pool.registry != reg {
		panic("isolate: WithContextPool pool was built from a different registry")
	}

	return &Executor{
		pool: pool,
		cfg:  cfg,
	}
}

// Pool returns the context pool the executor allocates from.
func (e *Executor) Pool() *ContextPool {
	return e.pool
}

// Execute runs every task of batch concurrently and returns one result per
// task, in batch order, once all of them have terminated.
//
// A batch that cannot get a context per task fails as a whole with a
// *PoolExhaustionError before any task runs. Otherwise every task runs to
// completion; in FailFast mode the first failing task by index is returned
// as the error alongside the full results, in CollectAll mode failures are
// only reported through TaskResult.Err.
func (e *Executor) Execute(ctx context.Context, batch []TaskSpec) (results []TaskResult, err error) {
	if len(batch) == 0 {
		return []TaskResult{}, nil
	}

	start := time.Now()

	args, err := encodeBatch(batch)
	if err != nil {
		return nil, err
	}

	contexts, err := e.pool.Acquire(ctx, len(batch))
	if err != nil {
		return nil, err
	}
	defer func() {
		if relErr := e.pool.Release(contexts); relErr != nil {
			err = errors.Join(err, relErr)
		}
		batchDuration.Observe(time.Since(start).Seconds())
	}()

	d := newDispatcher(e.cfg)
	futures := make([]*future, len(batch))
	for i, spec := range batch {
		futures[i] = d.dispatch(i, contexts[i], spec, args[i])
	}

	results = d.collect(futures)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	e.cfg.logger.Info("batch finished",
		"tasks", len(batch),
		"failed", failed,
		"mode", e.cfg.mode.String(),
		"duration", time.Since(start),
	)

	if e.cfg.mode == FailFast {
		return results, FirstFailure(results)
	}
	return results, nil
}

// Execute runs batch on a one-off Executor built from reg and opts.
func Execute(ctx context.Context, reg *Registry, batch []TaskSpec, opts ...Option) ([]TaskResult, error) {
	return NewExecutor(reg, opts...).Execute(ctx, batch)
}
