package isolate

import (
	"fmt"
	"time"
)

// Callable is a function defined inside a namespace. Its arguments were
// decoded inside the owning context and its return value is encoded before
// it leaves that context.
type Callable func(args []any) (any, error)

// TaskSpec names the callable to run and the arguments to run it with.
// It is treated as immutable once submitted.
type TaskSpec struct {
	Namespace string
	Callable  string
	Args      []any
}

// NewTask builds a TaskSpec for namespace.callable(args...).
func NewTask(namespace, callable string, args ...any) TaskSpec {
	return TaskSpec{Namespace: namespace, Callable: callable, Args: args}
}

func (s TaskSpec) String() string {
	return fmt.Sprintf("%s.%s", s.Namespace, s.Callable)
}

// TaskResult is the outcome of one task.
//
// Fields:
//   - Index: position of the task in the submitted batch
//   - Value: the callable's return value (only valid if Err is nil)
//   - Err: *TaskLookupError or *ExecutionError when the task failed
//   - ContextID: identifier of the context the task ran in
//   - Duration: time spent inside the context
type TaskResult struct {
	Index     int
	Value     any
	Err       error
	ContextID string
	Duration  time.Duration
}

// Ok reports whether the task succeeded.
func (r TaskResult) Ok() bool {
	return r.Err == nil
}

// Values extracts the result values in batch order.
func Values(results []TaskResult) []any {
	values := make([]any, len(results))
	for i, r := range results {
		values[i] = r.Value
	}
	return values
}

// FirstFailure returns the error of the failed task with the lowest index,
// or nil when every task succeeded.
func FirstFailure(results []TaskResult) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// Mode selects how per-task failures are reported by Execute.
type Mode int

const (
	// FailFast returns the lowest-index task failure as the call's error.
	FailFast Mode = iota
	// CollectAll reports failures only through TaskResult.Err.
	CollectAll
)

func (m Mode) String() string {
	switch m {
	case FailFast:
		return "fail-fast"
	case CollectAll:
		return "collect-all"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses the textual form produced by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "fail-fast", "failfast", "":
		return FailFast, nil
	case "collect-all", "collectall":
		return CollectAll, nil
	default:
		return FailFast, fmt.Errorf("unknown mode %q", s)
	}
}
