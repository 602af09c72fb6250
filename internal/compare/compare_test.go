package compare

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/utkarsh5026/isopool/internal/workload"
	"github.com/utkarsh5026/isopool/isolate"
)

const workerEnv = "ISOPOOL_COMPARE_WORKER"

// TestMain turns the test binary into a process worker when the parent
// test starts it with workerEnv set.
func TestMain(m *testing.M) {
	if os.Getenv(workerEnv) == "1" {
		if err := ServeWorker(os.Stdin, os.Stdout, workload.NewRegistry()); err != nil {
			os.Stderr.WriteString(err.Error())
			os.Exit(2)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func newProcessRunner(t *testing.T) *Process {
	t.Helper()

	exe, err := os.Executable()
	if err != nil {
		t.Skipf("cannot locate test binary: %v", err)
	}
	p := NewProcess(exe)
	p.Env = []string{workerEnv + "=1"}
	return p
}

func allRunners(t *testing.T) []Runner {
	reg := workload.NewRegistry()
	return []Runner{
		NewIsolated(reg),
		NewSharedThread(reg, nil),
		NewSequential(reg, nil),
		NewNative(workload.Natives()),
		newProcessRunner(t),
	}
}

func TestRunners_FactorialScenario(t *testing.T) {
	batch := []isolate.TaskSpec{
		isolate.NewTask(workload.BenchmarkNamespace, "py_factorial", 10),
		isolate.NewTask(workload.BenchmarkNamespace, "py_factorial", 20),
	}
	want := []int64{3628800, 146326063}

	for _, runner := range allRunners(t) {
		t.Run(runner.Name(), func(t *testing.T) {
			results, err := runner.Execute(context.Background(), batch)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(results) != len(want) {
				t.Fatalf("expected %d results, got %d", len(want), len(results))
			}
			for i, r := range results {
				if r.Index != i {
					t.Errorf("result %d carries index %d", i, r.Index)
				}
				if r.Value != want[i] {
					t.Errorf("task %d: expected %d, got %v", i, want[i], r.Value)
				}
			}
		})
	}
}

func TestRunners_LookupError(t *testing.T) {
	batch := []isolate.TaskSpec{
		isolate.NewTask(workload.BenchmarkNamespace, "py_factorial", 5),
		isolate.NewTask(workload.BenchmarkNamespace, "missing", 5),
	}

	for _, runner := range allRunners(t) {
		t.Run(runner.Name(), func(t *testing.T) {
			results, err := runner.Execute(context.Background(), batch)
			if !errors.Is(err, isolate.ErrTaskLookup) {
				t.Fatalf("expected lookup error, got %v", err)
			}

			var lookup *isolate.TaskLookupError
			if errors.As(err, &lookup) && lookup.Index != 1 {
				t.Errorf("expected index 1, got %d", lookup.Index)
			}
			if results[0].Value != int64(120) {
				t.Errorf("expected 120, got %v", results[0].Value)
			}
		})
	}
}

func TestRunners_StateVisibility(t *testing.T) {
	batch := []isolate.TaskSpec{
		isolate.NewTask(workload.CounterNamespace, "bump"),
		isolate.NewTask(workload.CounterNamespace, "bump"),
		isolate.NewTask(workload.CounterNamespace, "bump"),
	}

	tests := []struct {
		runner Runner
		// sum of the returned counter values
		want int64
	}{
		{runner: NewIsolated(workload.NewRegistry()), want: 3},
		{runner: newProcessRunner(t), want: 3},
		{runner: NewSequential(workload.NewRegistry(), nil), want: 6},
		{runner: NewSharedThread(workload.NewRegistry(), nil), want: 6},
	}

	for _, tt := range tests {
		t.Run(tt.runner.Name(), func(t *testing.T) {
			results, err := tt.runner.Execute(context.Background(), batch)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var sum int64
			for _, r := range results {
				sum += r.Value.(int64)
			}
			if sum != tt.want {
				t.Errorf("expected counter values to sum to %d, got %d", tt.want, sum)
			}
		})
	}
}

func TestSequential_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := []isolate.TaskSpec{isolate.NewTask(workload.BenchmarkNamespace, "py_factorial", 3)}
	if _, err := NewSequential(workload.NewRegistry(), nil).Execute(ctx, batch); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestProcess_MissingBinary(t *testing.T) {
	p := NewProcess("/nonexistent/isobench-worker")

	batch := []isolate.TaskSpec{isolate.NewTask(workload.BenchmarkNamespace, "py_factorial", 3)}
	if _, err := p.Execute(context.Background(), batch); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestToFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *failure
	}{
		{name: "nil", err: nil, want: nil},
		{name: "lookup", err: &isolate.TaskLookupError{Missing: isolate.MissingNamespace}, want: &failure{Lookup: true, Missing: isolate.MissingNamespace}},
		{name: "execution", err: &isolate.ExecutionError{Kind: "panic", Message: "boom"}, want: &failure{Kind: "panic", Message: "boom"}},
		{name: "other", err: errors.New("x"), want: &failure{Kind: "error", Message: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toFailure(tt.err)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("expected %+v, got %+v", *tt.want, *got)
			}
		})
	}
}
