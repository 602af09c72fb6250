package workload

import (
	"context"
	"testing"

	"github.com/utkarsh5026/isopool/isolate"
)

func TestFactorial(t *testing.T) {
	tests := []struct {
		n    int64
		want int64
	}{
		{n: -5, want: 1},
		{n: 0, want: 1},
		{n: 1, want: 1},
		{n: 5, want: 120},
		{n: 10, want: 3628800},
		{n: 20, want: 146326063},
	}

	for _, tt := range tests {
		if got := Factorial(tt.n); got != tt.want {
			t.Errorf("Factorial(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestRegister_Duplicate(t *testing.T) {
	reg := NewRegistry()
	if err := Register(reg); err == nil {
		t.Fatal("expected registering the workload twice to fail")
	}
}

func TestNamespaces_Callables(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		namespace string
		want      []string
	}{
		{namespace: BenchmarkNamespace, want: []string{"c_factorial", "py_factorial"}},
		{namespace: CounterNamespace, want: []string{"bump", "get", "set"}},
	}

	for _, tt := range tests {
		got, ok := reg.Callables(tt.namespace)
		if !ok {
			t.Fatalf("namespace %s not registered", tt.namespace)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("%s: expected %v, got %v", tt.namespace, tt.want, got)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s: expected %v, got %v", tt.namespace, tt.want, got)
			}
		}
	}
}

func TestExecute_FactorialBatch(t *testing.T) {
	batch := []isolate.TaskSpec{
		isolate.NewTask(BenchmarkNamespace, "py_factorial", 10),
		isolate.NewTask(BenchmarkNamespace, "py_factorial", 20),
		isolate.NewTask(BenchmarkNamespace, "c_factorial", 20),
	}

	results, err := isolate.Execute(context.Background(), NewRegistry(), batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []int64{3628800, 146326063, 146326063}
	for i, r := range results {
		if r.Value != want[i] {
			t.Errorf("task %d: expected %d, got %v", i, want[i], r.Value)
		}
	}
}

func TestExecute_CFactorialRejectsWideInput(t *testing.T) {
	batch := []isolate.TaskSpec{isolate.NewTask(BenchmarkNamespace, "c_factorial", int64(1)<<40)}

	_, err := isolate.Execute(context.Background(), NewRegistry(), batch)
	if err == nil {
		t.Fatal("expected argument error, got nil")
	}
}

func TestExecute_CounterIsolation(t *testing.T) {
	batch := []isolate.TaskSpec{
		isolate.NewTask(CounterNamespace, "set", 41),
		isolate.NewTask(CounterNamespace, "bump"),
		isolate.NewTask(CounterNamespace, "get"),
	}

	results, err := isolate.Execute(context.Background(), NewRegistry(), batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []int64{0, 1, 0}
	for i, r := range results {
		if r.Value != want[i] {
			t.Errorf("task %d: expected %d, got %v", i, want[i], r.Value)
		}
	}
}
