package benchmarks

import (
	"context"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/utkarsh5026/isopool/internal/compare"
	"github.com/utkarsh5026/isopool/internal/workload"
	"github.com/utkarsh5026/isopool/isolate"
)

// workerEnv makes the benchmark binary serve one process-runner request.
const workerEnv = "ISOPOOL_BENCH_WORKER"

// runnerConfig defines a benchmark configuration for one execution strategy
type runnerConfig struct {
	name  string
	build func(b *testing.B, reg *isolate.Registry) compare.Runner
}

// getAllRunners returns every execution strategy for benchmarking
func getAllRunners() []runnerConfig {
	return append(getInProcessRunners(), runnerConfig{
		name: "Process",
		build: func(b *testing.B, _ *isolate.Registry) compare.Runner {
			exe, err := os.Executable()
			if err != nil {
				b.Skipf("cannot locate benchmark binary: %v", err)
			}
			p := compare.NewProcess(exe)
			p.Env = []string{workerEnv + "=1"}
			return p
		},
	})
}

// getInProcessRunners returns the strategies that never leave the process
func getInProcessRunners() []runnerConfig {
	return []runnerConfig{
		{
			name: "Isolated",
			build: func(_ *testing.B, reg *isolate.Registry) compare.Runner {
				return compare.NewIsolated(reg, isolate.WithMaxContexts(-1))
			},
		},
		{
			name: "Native",
			build: func(_ *testing.B, _ *isolate.Registry) compare.Runner {
				return compare.NewNative(workload.Natives())
			},
		},
		{
			name: "SharedThread",
			build: func(_ *testing.B, reg *isolate.Registry) compare.Runner {
				return compare.NewSharedThread(reg, nil)
			},
		},
		{
			name: "Sequential",
			build: func(_ *testing.B, reg *isolate.Registry) compare.Runner {
				return compare.NewSequential(reg, nil)
			},
		},
	}
}

// runRunnerBenchmark runs benchFunc as a sub-benchmark for every runner
func runRunnerBenchmark(b *testing.B, runners []runnerConfig, benchFunc func(b *testing.B, r compare.Runner)) {
	reg := workload.NewRegistry()
	for _, rc := range runners {
		b.Run(rc.name, func(b *testing.B) {
			benchFunc(b, rc.build(b, reg))
		})
	}
}

// factorialBatch builds n factorial tasks with inputs spread over [base, base+n)
func factorialBatch(n int, base int64) []isolate.TaskSpec {
	batch := make([]isolate.TaskSpec, n)
	for i := range batch {
		batch[i] = isolate.NewTask(workload.BenchmarkNamespace, "py_factorial", base+int64(i))
	}
	return batch
}

// executeBatch runs batch b.N times and reports throughput
func executeBatch(b *testing.B, r compare.Runner, batch []isolate.TaskSpec) {
	b.Helper()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Execute(ctx, batch); err != nil {
			b.Fatal(err)
		}
	}
	b.StopTimer()

	nsPerOp := float64(b.Elapsed().Nanoseconds()) / float64(b.N)
	b.ReportMetric(float64(len(batch))/nsPerOp*1e9, "tasks/sec")
}

// percentile returns the p-th percentile of latencies (0 < p <= 1)
func percentile(latencies []time.Duration, p float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
