package isolate

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// State is the lifecycle state of an ExecutionContext.
type State int32

const (
	StateCreated State = iota
	StateActive
	StateFinished
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateFinished:
		return "finished"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ExecutionContext is an isolated runtime state: the namespaces it has
// imported and their globals. A context runs at most one task in its
// lifetime and is owned by the ContextPool that created it.
//
// The namespace table is only touched by the goroutine that moved the
// context to StateActive, so it needs no lock.
type ExecutionContext struct {
	id        string
	registry  *Registry
	logger    *slog.Logger
	state     atomic.Int32
	modules   map[string]*Namespace
	createdAt time.Time
}

func newExecutionContext(reg *Registry, logger *slog.Logger) *ExecutionContext {
	id := ulid.Make().String()
	return &ExecutionContext{
		id:        id,
		registry:  reg,
		logger:    logger.With("context_id", id),
		modules:   make(map[string]*Namespace),
		createdAt: time.Now(),
	}
}

// ID returns the context's unique identifier.
func (c *ExecutionContext) ID() string {
	return c.id
}

// State returns the current lifecycle state.
func (c *ExecutionContext) State() State {
	return State(c.state.Load())
}

// enter claims the context for the calling goroutine. Only a context that has
// never run can be entered.
func (c *ExecutionContext) enter() error {
	if c.state.CompareAndSwap(int32(StateCreated), int32(StateActive)) {
		return nil
	}
	return fmt.Errorf("context %s is %s: %w", c.id, c.State(), ErrContextBusy)
}

func (c *ExecutionContext) exit() error {
	if c.state.CompareAndSwap(int32(StateActive), int32(StateFinished)) {
		return nil
	}
	return fmt.Errorf("context %s is %s, not active: %w", c.id, c.State(), ErrContextBusy)
}

// destroy drops the context's namespaces. It succeeds exactly once.
func (c *ExecutionContext) destroy() error {
	for {
		cur := c.state.Load()
		if State(cur) == StateDestroyed {
			return fmt.Errorf("context %s: %w", c.id, ErrContextReleased)
		}
		if c.state.CompareAndSwap(cur, int32(StateDestroyed)) {
			c.modules = nil
			return nil
		}
	}
}

// resolve finds spec's callable inside this context, importing its namespace
// on first use.
func (c *ExecutionContext) resolve(index int, spec TaskSpec) (Callable, error) {
	ns, err := c.importNamespace(spec.Namespace)
	if errors.Is(err, errUnknownNamespace) {
		return nil, &TaskLookupError{
			Index:     index,
			Namespace: spec.Namespace,
			Callable:  spec.Callable,
			Missing:   MissingNamespace,
		}
	}
	if err != nil {
		return nil, newExecutionError(index, spec, "import", err.Error())
	}

	fn, ok := ns.lookup(spec.Callable)
	if !ok {
		return nil, &TaskLookupError{
			Index:     index,
			Namespace: spec.Namespace,
			Callable:  spec.Callable,
			Missing:   MissingCallable,
		}
	}
	return fn, nil
}

func (c *ExecutionContext) importNamespace(name string) (*Namespace, error) {
	if ns, ok := c.modules[name]; ok {
		return ns, nil
	}

	ns, err := c.registry.instantiate(name, c.logger)
	if err != nil {
		return nil, err
	}
	c.modules[name] = ns
	c.logger.Debug("namespace imported", "namespace", name)
	return ns, nil
}
