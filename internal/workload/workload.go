// Package workload defines the namespaces the benchmark tool runs: a
// CPU-bound factorial in two flavours and a stateful counter used to show
// that contexts do not share globals.
package workload

import (
	"fmt"
	"time"

	"github.com/utkarsh5026/isopool/isolate"
)

const (
	BenchmarkNamespace = "isolated_benchmark"
	CounterNamespace   = "counter"

	// Modulus keeps factorials of large inputs inside an int64.
	Modulus = 1000000007
)

// Factorial returns n! mod Modulus. Inputs below 2 yield 1.
func Factorial(n int64) int64 {
	k := int64(1)
	for i := n; i > 1; i-- {
		k = k * i % Modulus
	}
	return k
}

// Register adds the workload namespaces to reg.
func Register(reg *isolate.Registry) error {
	if err := reg.Register(BenchmarkNamespace, benchmarkNamespace); err != nil {
		return err
	}
	return reg.Register(CounterNamespace, counterNamespace)
}

// NewRegistry returns a registry holding only the workload namespaces.
func NewRegistry() *isolate.Registry {
	reg := isolate.NewRegistry()
	if err := Register(reg); err != nil {
		panic(err)
	}
	return reg
}

// Natives returns the benchmark callables as plain functions keyed by
// "namespace.callable", for runners that bypass namespaces entirely.
func Natives() map[string]isolate.Callable {
	factorial := isolate.Func1(func(n int64) (int64, error) {
		return Factorial(n), nil
	})
	return map[string]isolate.Callable{
		BenchmarkNamespace + ".py_factorial": factorial,
		BenchmarkNamespace + ".c_factorial":  factorial,
	}
}

func benchmarkNamespace(ns *isolate.Namespace) error {
	ns.Def("py_factorial", isolate.Func1(func(n int64) (int64, error) {
		if n < 0 {
			return 0, fmt.Errorf("factorial of negative number %d", n)
		}

		begin := time.Now()
		k := Factorial(n)
		ns.Logger().Info("py_factorial internals finished", "n", n, "elapsed_ms", float64(time.Since(begin).Microseconds())/1000)
		return k, nil
	}))

	// c_factorial reports nothing and accepts only inputs that fit a C int.
	ns.Def("c_factorial", isolate.Func1(func(n int32) (int64, error) {
		if n < 0 {
			return 0, fmt.Errorf("factorial of negative number %d", n)
		}
		return Factorial(int64(n)), nil
	}))
	return nil
}

func counterNamespace(ns *isolate.Namespace) error {
	ns.Set("value", int64(0))

	value := func() int64 {
		v, _ := ns.Get("value")
		return v.(int64)
	}

	ns.Def("bump", isolate.Func0(func() (int64, error) {
		next := value() + 1
		ns.Set("value", next)
		return next, nil
	}))
	ns.Def("get", isolate.Func0(func() (int64, error) {
		return value(), nil
	}))
	ns.Def("set", isolate.Func1(func(v int64) (int64, error) {
		prev := value()
		ns.Set("value", v)
		return prev, nil
	}))
	return nil
}
