package isolate

import (
	"fmt"
	"runtime"
	"time"

	"github.com/utkarsh5026/isopool/internal/cpu"
	"golang.org/x/sync/errgroup"
)

// dispatcher starts one worker per task and owns the group they join.
type dispatcher struct {
	cfg   *config
	group errgroup.Group
}

func newDispatcher(cfg *config) *dispatcher {
	return &dispatcher{cfg: cfg}
}

// dispatch starts the worker for task index on its own goroutine, locked to
// a dedicated OS thread unless disabled. args are the task's arguments as
// encoded by the caller.
func (d *dispatcher) dispatch(index int, ec *ExecutionContext, spec TaskSpec, args []byte) *future {
	f := newFuture()

	d.group.Go(func() error {
		if d.cfg.dedicatedThreads {
			release := cpu.BindThread(index, d.cfg.pinCPU)
			defer release()
		}

		d.hookStart(index, spec)
		result := d.run(index, ec, spec, args)
		observeTask(result)
		d.hookEnd(result)

		f.complete(result)
		return nil
	})

	return f
}

func (d *dispatcher) run(index int, ec *ExecutionContext, spec TaskSpec, args []byte) TaskResult {
	start := time.Now()
	payload, err := runInContext(ec, index, spec, args)

	result := TaskResult{
		Index:     index,
		ContextID: ec.ID(),
		Duration:  time.Since(start),
	}
	if err != nil {
		result.Err = err
		ec.logger.Warn("task failed", "index", index, "task", spec.String(), "error", err)
		return result
	}

	value, err := decodeValue(payload)
	if err != nil {
		result.Err = newExecutionError(index, spec, "transfer", err.Error())
		return result
	}
	result.Value = value
	ec.logger.Debug("task finished", "index", index, "task", spec.String(), "duration", result.Duration)
	return result
}

// runInContext executes one task inside ec: enter, decode the arguments,
// resolve and call, encode the return value, exit. Nothing decoded inside the
// context is returned by reference.
func runInContext(ec *ExecutionContext, index int, spec TaskSpec, args []byte) (payload []byte, err error) {
	if err := ec.enter(); err != nil {
		return nil, newExecutionError(index, spec, "context", err.Error())
	}
	defer func() {
		if exitErr := ec.exit(); exitErr != nil && err == nil {
			payload, err = nil, newExecutionError(index, spec, "context", exitErr.Error())
		}
	}()

	values, err := decodeValues(args)
	if err != nil {
		return nil, newExecutionError(index, spec, "transfer", err.Error())
	}

	ret, err := invoke(ec, index, spec, values)
	if err != nil {
		return nil, err
	}

	payload, err = encodeValue(ret)
	if err != nil {
		return nil, newExecutionError(index, spec, "transfer", err.Error())
	}
	return payload, nil
}

// invoke resolves spec inside ec and calls it. Errors and panics from the
// task body become *ExecutionError.
func invoke(ec *ExecutionContext, index int, spec TaskSpec, args []any) (value any, err error) {
	defer recoverTask(index, spec, &err)

	fn, err := ec.resolve(index, spec)
	if err != nil {
		return nil, err
	}

	value, err = fn(args)
	if err != nil {
		return nil, newExecutionError(index, spec, errorKind(err), err.Error())
	}
	return value, nil
}

// recoverTask converts a panic in a task into an *ExecutionError with the
// worker's stack trace. It must be deferred directly.
func recoverTask(index int, spec TaskSpec, err *error) {
	r := recover()
	if r == nil {
		return
	}

	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)

	e := newExecutionError(index, spec, "panic", fmt.Sprint(r))
	e.Stack = string(buf[:n])
	*err = e
}

func (d *dispatcher) hookStart(index int, spec TaskSpec) {
	if d.cfg.onTaskStart == nil {
		return
	}
	defer d.recoverHook("start", index)
	d.cfg.onTaskStart(index, spec)
}

func (d *dispatcher) hookEnd(result TaskResult) {
	if d.cfg.onTaskEnd == nil {
		return
	}
	defer d.recoverHook("end", result.Index)
	d.cfg.onTaskEnd(result)
}

func (d *dispatcher) recoverHook(hook string, index int) {
	if r := recover(); r != nil {
		d.cfg.logger.Error("task hook panicked", "hook", hook, "index", index, "panic", r)
	}
}

// collect waits at the join barrier until every worker has terminated, then
// gathers the results in submission order.
func (d *dispatcher) collect(futures []*future) []TaskResult {
	_ = d.group.Wait()

	results := make([]TaskResult, len(futures))
	for i, f := range futures {
		results[i] = f.wait()
	}
	return results
}
