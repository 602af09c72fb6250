// Package isolate runs a batch of independent, CPU-bound tasks in parallel,
// giving every task its own isolated execution context.
//
// A context owns private instances of every namespace it imports. Namespaces
// are declared once in a Registry as init functions; each context that
// imports a namespace runs its init function again, so whatever state the
// init function captures is visible only inside that context. No lock is
// shared between contexts while tasks run.
//
// # Basic Usage
//
//	reg := isolate.NewRegistry()
//	reg.MustRegister("math", func(ns *isolate.Namespace) error {
//	    ns.Def("square", isolate.Func1(func(n int) (int, error) {
//	        return n * n, nil
//	    }))
//	    return nil
//	})
//
//	exec := isolate.NewExecutor(reg)
//	results, err := exec.Execute(ctx, []isolate.TaskSpec{
//	    isolate.NewTask("math", "square", 3),
//	    isolate.NewTask("math", "square", 4),
//	})
//	// isolate.Values(results): [9 16]
//
// # Lifecycle
//
// Every call to Execute acquires one fresh context per task from its
// ContextPool, starts one goroutine per task locked to its own OS thread,
// waits for all of them at a join barrier and releases every context before
// returning. Contexts are never reused across calls.
//
// # Transfer
//
// Arguments and return values cross the context boundary through gob
// encoding. Basic Go types, []any and map[string]any work out of the box;
// register custom struct types with RegisterType.
//
// # Error Handling
//
//   - PoolExhaustionError: contexts could not be allocated; nothing ran.
//   - TaskLookupError: the namespace or callable is unknown in the context.
//   - ExecutionError: the callable returned an error or panicked.
//   - TransferError: an argument could not be serialized; nothing ran.
//
// In FailFast mode (the default) Execute returns the ordered results together
// with the failure of the lowest task index. In CollectAll mode every outcome
// is reported through TaskResult.Err and the call itself succeeds.
package isolate
