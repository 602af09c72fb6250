// Package bench runs one batch through several runners and compares them.
package bench

import (
	"context"
	"io"
	"math/rand/v2"
	"reflect"
	"slices"
	"sort"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/utkarsh5026/isopool/internal/compare"
	"github.com/utkarsh5026/isopool/isolate"
)

// Options configures a benchmark run.
type Options struct {
	// Reference names the runner whose values every other runner must match.
	// Defaults to the first runner that succeeds.
	Reference string

	// Baseline, when set, times a single task of the batch on its own.
	Baseline compare.Runner

	// Progress receives a progress bar, one step per runner. Nil disables it.
	Progress io.Writer
}

// Result holds the outcome of one runner.
type Result struct {
	Runner      string        `json:"runner"`
	Rank        int           `json:"rank"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	Correct     bool          `json:"correct"`
	Failed      int           `json:"failed_tasks"`
	TotalTime   time.Duration `json:"total_time_ns"`
	TasksPerSec float64       `json:"tasks_per_sec"`
	AvgLatency  time.Duration `json:"avg_latency_ns"`
	P50Latency  time.Duration `json:"p50_latency_ns"`
	P95Latency  time.Duration `json:"p95_latency_ns"`
	P99Latency  time.Duration `json:"p99_latency_ns"`

	TotalTimeStr  string `json:"total_time"`
	AvgLatencyStr string `json:"avg_latency"`
	P50LatencyStr string `json:"p50_latency"`
	P95LatencyStr string `json:"p95_latency"`
	P99LatencyStr string `json:"p99_latency"`

	values []any
}

// Report is the outcome of a whole benchmark run.
type Report struct {
	Tasks      int           `json:"tasks"`
	SingleTask time.Duration `json:"single_task_ns,omitempty"`
	Reference  string        `json:"reference,omitempty"`
	Results    []Result      `json:"results"`
}

// GenerateBatch builds n calls of namespace.callable with inputs drawn
// uniformly from [lo, hi].
func GenerateBatch(rng *rand.Rand, n int, lo, hi int64, namespace, callable string) []isolate.TaskSpec {
	batch := make([]isolate.TaskSpec, n)
	for i := range batch {
		batch[i] = isolate.NewTask(namespace, callable, lo+rng.Int64N(hi-lo+1))
	}
	return batch
}

// NewRand returns a generator seeded with seed, or with the current time
// when seed is 0.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1))
}

// Run executes batch on every runner in turn and ranks the successful ones
// by wall time.
func Run(ctx context.Context, runners []compare.Runner, batch []isolate.TaskSpec, opts Options) Report {
	report := Report{Tasks: len(batch)}

	if opts.Baseline != nil && len(batch) > 0 {
		start := time.Now()
		if _, err := opts.Baseline.Execute(ctx, batch[:1]); err == nil {
			report.SingleTask = time.Since(start)
		}
	}

	var bar *progressbar.ProgressBar
	if opts.Progress != nil {
		bar = makeProgressBar(opts.Progress, len(runners))
	}

	report.Results = make([]Result, 0, len(runners))
	for _, runner := range runners {
		if bar != nil {
			bar.Describe("Running " + runner.Name())
		}
		report.Results = append(report.Results, runOne(ctx, runner, batch))
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	report.Reference = checkCorrectness(report.Results, opts.Reference)
	rank(report.Results)
	populateStringFields(report.Results)
	return report
}

func runOne(ctx context.Context, runner compare.Runner, batch []isolate.TaskSpec) Result {
	result := Result{Runner: runner.Name()}

	start := time.Now()
	results, err := runner.Execute(ctx, batch)
	result.TotalTime = time.Since(start)

	if results == nil && err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	if err != nil {
		result.Error = err.Error()
	}
	if secs := result.TotalTime.Seconds(); secs > 0 {
		result.TasksPerSec = float64(len(batch)) / secs
	}

	latencies := make([]time.Duration, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			result.Failed++
		}
		latencies = append(latencies, r.Duration)
	}
	result.AvgLatency, result.P50Latency, result.P95Latency, result.P99Latency = latencyStats(latencies)
	result.values = isolate.Values(results)
	return result
}

// checkCorrectness marks every result whose values equal the reference
// runner's and returns the name of the reference used.
func checkCorrectness(results []Result, reference string) string {
	ref := -1
	for i, r := range results {
		if r.Success && r.Failed == 0 && (reference == "" || r.Runner == reference) {
			ref = i
			break
		}
	}
	if ref < 0 {
		return ""
	}

	want := results[ref].values
	for i := range results {
		r := &results[i]
		r.Correct = r.Success && r.Failed == 0 && reflect.DeepEqual(r.values, want)
	}
	return results[ref].Runner
}

// rank orders results fastest first, failed runners last, and numbers the
// successful ones from 1.
func rank(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Success != results[j].Success {
			return results[i].Success
		}
		return results[i].TotalTime < results[j].TotalTime
	})

	n := 0
	for i := range results {
		if results[i].Success {
			n++
			results[i].Rank = n
		}
	}
}

func latencyStats(latencies []time.Duration) (avg, p50, p95, p99 time.Duration) {
	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	avg = sum / time.Duration(len(sorted))
	return avg, percentile(sorted, 50), percentile(sorted, 95), percentile(sorted, 99)
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p int) time.Duration {
	idx := (len(sorted)*p + 99) / 100
	return sorted[max(idx-1, 0)]
}

func makeProgressBar(w io.Writer, steps int) *progressbar.ProgressBar {
	return progressbar.NewOptions(steps,
		progressbar.OptionSetDescription("Running runners"),
		progressbar.OptionSetWidth(50),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(w),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
