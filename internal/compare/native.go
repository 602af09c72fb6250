package compare

import (
	"context"
	"time"

	"github.com/utkarsh5026/isopool/isolate"
	"golang.org/x/sync/errgroup"
)

// Native calls plain Go functions on one goroutine per task, with no
// namespace lookup, no lock and no copying. It is the lower bound every
// other runner is measured against.
type Native struct {
	funcs map[string]isolate.Callable
}

// NewNative creates a runner over funcs, keyed by "namespace.callable".
func NewNative(funcs map[string]isolate.Callable) *Native {
	return &Native{funcs: funcs}
}

func (r *Native) Name() string { return "native" }

func (r *Native) Execute(ctx context.Context, batch []isolate.TaskSpec) ([]isolate.TaskResult, error) {
	results := make([]isolate.TaskResult, len(batch))

	var g errgroup.Group
	for i, spec := range batch {
		g.Go(func() error {
			results[i] = r.call(i, spec)
			return nil
		})
	}
	_ = g.Wait()

	return results, isolate.FirstFailure(results)
}

func (r *Native) call(index int, spec isolate.TaskSpec) isolate.TaskResult {
	result := isolate.TaskResult{Index: index}

	fn, ok := r.funcs[spec.String()]
	if !ok {
		result.Err = &isolate.TaskLookupError{
			Index:     index,
			Namespace: spec.Namespace,
			Callable:  spec.Callable,
			Missing:   isolate.MissingCallable,
		}
		return result
	}

	start := time.Now()
	value, err := fn(spec.Args)
	result.Duration = time.Since(start)
	if err != nil {
		result.Err = &isolate.ExecutionError{
			Index:     index,
			Namespace: spec.Namespace,
			Callable:  spec.Callable,
			Kind:      "error",
			Message:   err.Error(),
		}
		return result
	}
	result.Value = value
	return result
}
