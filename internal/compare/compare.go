// Package compare holds the execution strategies the isolated executor is
// benchmarked against. Every Runner takes the same batch and returns one
// result per task in batch order.
package compare

import (
	"context"
	"log/slog"

	"github.com/utkarsh5026/isopool/isolate"
	"golang.org/x/sync/errgroup"
)

// Runner executes a batch of tasks with one particular strategy.
type Runner interface {
	Name() string
	Execute(ctx context.Context, batch []isolate.TaskSpec) ([]isolate.TaskResult, error)
}

// Isolated runs batches on an isolate.Executor.
type Isolated struct {
	exec *isolate.Executor
}

func NewIsolated(reg *isolate.Registry, opts ...isolate.Option) *Isolated {
	return &Isolated{exec: isolate.NewExecutor(reg, opts...)}
}

func (r *Isolated) Name() string { return "isolated" }

// Pool returns the context pool backing the runner.
func (r *Isolated) Pool() *isolate.ContextPool { return r.exec.Pool() }

func (r *Isolated) Execute(ctx context.Context, batch []isolate.TaskSpec) ([]isolate.TaskResult, error) {
	return r.exec.Execute(ctx, batch)
}

// SharedThread starts one goroutine per task, but every task body runs under
// the same runtime-wide lock against one shared namespace table.
type SharedThread struct {
	rt *isolate.SharedRuntime
}

func NewSharedThread(reg *isolate.Registry, logger *slog.Logger) *SharedThread {
	return &SharedThread{rt: isolate.NewSharedRuntime(reg, logger)}
}

func (r *SharedThread) Name() string { return "shared-thread" }

func (r *SharedThread) Execute(ctx context.Context, batch []isolate.TaskSpec) ([]isolate.TaskResult, error) {
	results := make([]isolate.TaskResult, len(batch))

	var g errgroup.Group
	for i, spec := range batch {
		g.Go(func() error {
			results[i] = r.rt.Call(i, spec)
			return nil
		})
	}
	_ = g.Wait()

	return results, isolate.FirstFailure(results)
}

// Sequential runs the batch one task after another on the calling goroutine.
type Sequential struct {
	rt *isolate.SharedRuntime
}

func NewSequential(reg *isolate.Registry, logger *slog.Logger) *Sequential {
	return &Sequential{rt: isolate.NewSharedRuntime(reg, logger)}
}

func (r *Sequential) Name() string { return "sequential" }

func (r *Sequential) Execute(ctx context.Context, batch []isolate.TaskSpec) ([]isolate.TaskResult, error) {
	results := make([]isolate.TaskResult, len(batch))
	for i, spec := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results[i] = r.rt.Call(i, spec)
	}
	return results, isolate.FirstFailure(results)
}
