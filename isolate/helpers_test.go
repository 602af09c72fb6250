package isolate

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
)

const testModulus = 1000000007

// failures counts task bodies that ran to a failure. It lives outside every
// context so tests can observe side effects across them.
var failures atomic.Int64

func factorial(n int64) int64 {
	result := int64(1)
	for i := n; i > 1; i-- {
		result = result * i % testModulus
	}
	return result
}

// newTestRegistry registers the namespaces used throughout the tests:
//
//	bench.factorial(n)      n! mod 1e9+7
//	bench.fail(msg)         returns an error
//	bench.explode()         panics
//	bench.echo(args...)     returns its arguments
//	bench.leak()            returns a value that cannot be transferred
//	counter.bump()          increments a namespace global and returns it
//	counter.get()           reads the namespace global
func newTestRegistry(t testing.TB) *Registry {
	t.Helper()

	reg := NewRegistry()
	reg.MustRegister("bench", func(ns *Namespace) error {
		ns.Def("factorial", Func1(func(n int64) (int64, error) {
			if n < 0 {
				return 0, fmt.Errorf("negative input %d", n)
			}
			return factorial(n), nil
		}))
		ns.Def("fail", Func1(func(msg string) (any, error) {
			failures.Add(1)
			return nil, errors.New(msg)
		}))
		ns.Def("explode", Func0(func() (any, error) {
			panic("boom")
		}))
		ns.Def("echo", func(args []any) (any, error) {
			return args, nil
		})
		ns.Def("leak", Func0(func() (func(), error) {
			return func() {}, nil
		}))
		return nil
	})
	reg.MustRegister("counter", func(ns *Namespace) error {
		ns.Set("count", 0)
		ns.Def("bump", Func0(func() (int, error) {
			v, _ := ns.Get("count")
			next := v.(int) + 1
			ns.Set("count", next)
			return next, nil
		}))
		ns.Def("get", Func0(func() (int, error) {
			v, _ := ns.Get("count")
			return v.(int), nil
		}))
		return nil
	})
	return reg
}

func factorialBatch(inputs ...int64) []TaskSpec {
	batch := make([]TaskSpec, len(inputs))
	for i, n := range inputs {
		batch[i] = NewTask("bench", "factorial", n)
	}
	return batch
}
