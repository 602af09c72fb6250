package isolate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPoolExhausted   = errors.New("isolate: context pool exhausted")
	ErrTaskLookup      = errors.New("isolate: task lookup failed")
	ErrExecution       = errors.New("isolate: task execution failed")
	ErrTransfer        = errors.New("isolate: value not transferable")
	ErrContextReleased = errors.New("isolate: context already released")
	ErrContextBusy     = errors.New("isolate: context is not idle")
)

// PoolExhaustionError reports that the pool could not allocate the contexts a
// batch needs. Contexts created before the failure have been released and no
// task was dispatched.
type PoolExhaustionError struct {
	Requested int
	Created   int
	Limit     int
	Err       error
}

func (e *PoolExhaustionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "context pool exhausted: requested %d contexts", e.Requested)
	if e.Created > 0 {
		fmt.Fprintf(&b, ", %d created and released", e.Created)
	}
	if e.Limit > 0 {
		fmt.Fprintf(&b, " (limit %d)", e.Limit)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *PoolExhaustionError) Is(target error) bool { return target == ErrPoolExhausted }

func (e *PoolExhaustionError) Unwrap() error { return e.Err }

// Which part of a task reference could not be resolved.
const (
	MissingNamespace = "namespace"
	MissingCallable  = "callable"
)

// TaskLookupError reports that a task's namespace or callable does not exist
// inside its context.
type TaskLookupError struct {
	Index     int
	Namespace string
	Callable  string
	Missing   string
}

func (e *TaskLookupError) Error() string {
	if e.Missing == MissingNamespace {
		return fmt.Sprintf("task %d: namespace %q not found", e.Index, e.Namespace)
	}
	return fmt.Sprintf("task %d: callable %q not found in namespace %q", e.Index, e.Callable, e.Namespace)
}

func (e *TaskLookupError) Is(target error) bool { return target == ErrTaskLookup }

// ExecutionError reports a failure raised by a task body. Only the kind and
// message of the original failure cross the context boundary.
type ExecutionError struct {
	Index     int
	Namespace string
	Callable  string
	Kind      string
	Message   string
	Stack     string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %d (%s.%s) failed with %s: %s", e.Index, e.Namespace, e.Callable, e.Kind, e.Message)
}

func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

// TransferError reports a value that cannot be serialized across the context
// boundary.
type TransferError struct {
	Index     int
	Direction string
	Err       error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("task %d: %s not transferable: %v", e.Index, e.Direction, e.Err)
}

func (e *TransferError) Is(target error) bool { return target == ErrTransfer }

func (e *TransferError) Unwrap() error { return e.Err }

// ArgumentError is returned by the typed Func adapters when the arguments of
// a call do not match the wrapped function's signature.
type ArgumentError struct {
	Position int
	Want     string
	Got      string
}

func (e *ArgumentError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("argument %d: missing, want %s", e.Position, e.Want)
	}
	return fmt.Sprintf("argument %d: got %s, want %s", e.Position, e.Got, e.Want)
}

// Kind implements the kinded interface used to label execution errors.
func (e *ArgumentError) Kind() string { return "argument" }

type kinded interface {
	Kind() string
}

// errorKind names the kind of a task failure: the Kind() of errors that
// provide one, otherwise the dynamic Go type of the error.
func errorKind(err error) string {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}

func newExecutionError(index int, spec TaskSpec, kind, message string) *ExecutionError {
	return &ExecutionError{
		Index:     index,
		Namespace: spec.Namespace,
		Callable:  spec.Callable,
		Kind:      kind,
		Message:   message,
	}
}
