package isolate

import (
	"log/slog"
	"sync"
	"time"
)

// SharedRuntime runs tasks against one namespace table shared by every
// caller. A single runtime-wide lock serializes the task bodies, so callers
// on many goroutines still execute one task at a time, and namespace state
// written by one task is visible to the next.
//
// It is the baseline the isolated Executor is compared against.
type SharedRuntime struct {
	mu sync.Mutex
	ec *ExecutionContext
}

// NewSharedRuntime creates a shared runtime over the namespaces in reg.
func NewSharedRuntime(reg *Registry, logger *slog.Logger) *SharedRuntime {
	if logger == nil {
		logger = discardLogger()
	}

	ec := newExecutionContext(reg, logger)
	ec.state.Store(int32(StateActive))
	return &SharedRuntime{ec: ec}
}

// Call runs spec while holding the runtime lock. Arguments and the return
// value are passed by reference.
func (r *SharedRuntime) Call(index int, spec TaskSpec) TaskResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	value, err := invoke(r.ec, index, spec, spec.Args)
	return TaskResult{
		Index:     index,
		Value:     value,
		Err:       err,
		ContextID: r.ec.id,
		Duration:  time.Since(start),
	}
}
