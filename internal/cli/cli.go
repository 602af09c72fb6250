// Package cli implements the isobench command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/utkarsh5026/isopool/internal/batchfile"
	"github.com/utkarsh5026/isopool/internal/bench"
	"github.com/utkarsh5026/isopool/internal/compare"
	"github.com/utkarsh5026/isopool/internal/config"
	"github.com/utkarsh5026/isopool/internal/telemetry"
	"github.com/utkarsh5026/isopool/internal/workload"
	"github.com/utkarsh5026/isopool/isolate"
)

// Version is set via ldflags at build time.
var Version = "dev"

// WorkerCommand is the subcommand the process runner starts workers with.
const WorkerCommand = "worker"

// App holds the streams a command writes to.
type App struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Executable is the binary the process runner re-executes. Empty means
	// the running binary.
	Executable string
}

// NewApp returns an App bound to the process's standard streams.
func NewApp() *App {
	return &App{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run executes the isobench CLI.
func (a *App) Run(ctx context.Context, args []string) error {
	// Workers answer exactly one request and must not depend on the
	// parent's config file or flags.
	if len(args) > 0 && args[0] == WorkerCommand {
		return compare.ServeWorker(a.Stdin, a.Stdout, workload.NewRegistry())
	}

	fs := flag.NewFlagSet("isobench", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	fs.Usage = func() {
		a.printUsage(fs, a.Stderr)
	}
	help := fs.Bool("help", false, "Show help")
	showVersion := fs.Bool("version", false, "Show version")

	cfg, err := config.Load(fs, args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *help {
		a.printUsage(fs, a.Stdout)
		return nil
	}
	if *showVersion {
		fmt.Fprintf(a.Stdout, "isobench %s\n", Version)
		return nil
	}
	if cfg.CI {
		color.NoColor = true
	}

	subcommand := "bench"
	remaining := fs.Args()
	if len(remaining) > 0 && !strings.HasPrefix(remaining[0], "-") {
		subcommand = remaining[0]
		remaining = remaining[1:]
	}

	logger := cfg.NewLogger(a.Stderr)

	switch subcommand {
	case "bench":
		if len(remaining) > 0 {
			return fmt.Errorf("bench: unexpected arguments %v (options go before the command)", remaining)
		}
		return a.benchCommand(ctx, cfg, logger)
	case "run":
		return a.runCommand(ctx, cfg, logger, remaining)
	case "namespaces", "ls":
		return a.namespacesCommand()
	case "version":
		fmt.Fprintf(a.Stdout, "isobench %s\n", Version)
		return nil
	case "help":
		a.printUsage(fs, a.Stdout)
		return nil
	default:
		fmt.Fprintf(a.Stderr, "Unknown command: %s\n", subcommand)
		a.printUsage(fs, a.Stderr)
		return fmt.Errorf("unknown command: %s", subcommand)
	}
}

func (a *App) benchCommand(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := workload.NewRegistry()
	runners, isolated, err := a.buildRunners(cfg, reg, logger)
	if err != nil {
		return err
	}

	stop := a.startTelemetry(ctx, cfg, logger, isolated)
	defer stop()

	batch := bench.GenerateBatch(bench.NewRand(cfg.Seed), cfg.Tasks, cfg.Min, cfg.Max,
		workload.BenchmarkNamespace, "py_factorial")

	if !cfg.JSON {
		a.printConfiguration(cfg)
	}

	opts := bench.Options{
		Reference: config.RunnerSequential,
		Baseline:  compare.NewSequential(reg, logger),
	}
	if !cfg.CI && !cfg.JSON {
		opts.Progress = a.Stderr
	}

	report := bench.Run(ctx, runners, batch, opts)
	if err := ctx.Err(); err != nil {
		return err
	}

	if cfg.JSON {
		return bench.WriteJSON(a.Stdout, report)
	}
	return bench.Render(a.Stdout, report)
}

func (a *App) runCommand(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	batchPath := fs.String("batch", "", "Path to a JSON batch file")
	runnerName := fs.String("runner", config.RunnerIsolated, "Runner to execute the batch with")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *batchPath == "" && fs.NArg() > 0 {
		*batchPath = fs.Arg(0)
	}
	if *batchPath == "" {
		return fmt.Errorf("run: a batch file is required (-batch file.json)")
	}

	batch, err := batchfile.Load(*batchPath)
	if err != nil {
		return err
	}

	reg := workload.NewRegistry()
	runner, isolated, err := a.newRunner(*runnerName, cfg, reg, logger)
	if err != nil {
		return err
	}

	stop := a.startTelemetry(ctx, cfg, logger, isolated)
	defer stop()

	results, execErr := runner.Execute(ctx, batch)
	if results == nil && execErr != nil {
		return execErr
	}

	if cfg.JSON {
		if err := writeResultsJSON(a.Stdout, batch, results); err != nil {
			return err
		}
	} else if err := renderResults(a.Stdout, batch, results); err != nil {
		return err
	}
	return execErr
}

func (a *App) namespacesCommand() error {
	reg := workload.NewRegistry()

	table := tablewriter.NewWriter(a.Stdout)
	table.Header("Namespace", "Callables")
	for _, ns := range reg.Namespaces() {
		callables, _ := reg.Callables(ns)
		_ = table.Append(ns, strings.Join(callables, ", "))
	}
	return table.Render()
}

func (a *App) buildRunners(cfg *config.Config, reg *isolate.Registry, logger *slog.Logger) ([]compare.Runner, *compare.Isolated, error) {
	var isolated *compare.Isolated
	runners := make([]compare.Runner, 0, len(cfg.Runners))

	for _, name := range cfg.Runners {
		runner, iso, err := a.newRunner(name, cfg, reg, logger)
		if err != nil {
			return nil, nil, err
		}
		if iso != nil {
			isolated = iso
		}
		runners = append(runners, runner)
	}
	return runners, isolated, nil
}

func (a *App) newRunner(name string, cfg *config.Config, reg *isolate.Registry, logger *slog.Logger) (compare.Runner, *compare.Isolated, error) {
	switch name {
	case config.RunnerIsolated:
		iso := compare.NewIsolated(reg,
			isolate.WithMode(cfg.ExecutorMode()),
			isolate.WithLogger(logger),
			isolate.WithMaxContexts(cfg.MaxContexts),
			isolate.WithCPUPinning(cfg.PinCPU),
		)
		return iso, iso, nil
	case config.RunnerSharedThread:
		return compare.NewSharedThread(reg, logger), nil, nil
	case config.RunnerSequential:
		return compare.NewSequential(reg, logger), nil, nil
	case config.RunnerNative:
		return compare.NewNative(workload.Natives()), nil, nil
	case config.RunnerProcess:
		exe := a.Executable
		if exe == "" {
			var err error
			if exe, err = os.Executable(); err != nil {
				return nil, nil, fmt.Errorf("process runner: %w", err)
			}
		}
		return compare.NewProcess(exe, WorkerCommand), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown runner %q", name)
	}
}

// startTelemetry serves metrics in the background when configured and
// returns a function that stops the server.
func (a *App) startTelemetry(ctx context.Context, cfg *config.Config, logger *slog.Logger, isolated *compare.Isolated) func() {
	if cfg.MetricsAddr == "" {
		return func() {}
	}

	var pool *isolate.ContextPool
	if isolated != nil {
		pool = isolated.Pool()
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := telemetry.NewServer(logger, pool).Serve(ctx, cfg.MetricsAddr, nil); err != nil {
			logger.Error("telemetry server failed", "error", err)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (a *App) printConfiguration(cfg *config.Config) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintln(a.Stdout, "╔════════════════════════════════════════════════════════════╗")
	_, _ = bold.Fprintf(a.Stdout, "║       %-52s ║\n", "ISOLATED CONTEXT BENCHMARK")
	_, _ = bold.Fprintln(a.Stdout, "╚════════════════════════════════════════════════════════════╝")
	fmt.Fprintf(a.Stdout, "  Tasks:        %d\n", cfg.Tasks)
	fmt.Fprintf(a.Stdout, "  Input range:  [%s, %s]\n", bench.FormatNumber(int(cfg.Min)), bench.FormatNumber(int(cfg.Max)))
	fmt.Fprintf(a.Stdout, "  Runners:      %s\n", strings.Join(cfg.Runners, ", "))
	fmt.Fprintf(a.Stdout, "  Mode:         %s\n", cfg.ExecutorMode())
	if cfg.ConfigFile != "" {
		fmt.Fprintf(a.Stdout, "  Config file:  %s\n", cfg.ConfigFile)
	}
	fmt.Fprintln(a.Stdout)
}

type taskOutput struct {
	Index     int    `json:"index"`
	Task      string `json:"task"`
	Value     any    `json:"value,omitempty"`
	Error     string `json:"error,omitempty"`
	ContextID string `json:"context_id,omitempty"`
	Duration  string `json:"duration"`
}

func toOutput(results []isolate.TaskResult, batch []isolate.TaskSpec) []taskOutput {
	out := make([]taskOutput, len(results))
	for i, r := range results {
		out[i] = taskOutput{
			Index:     r.Index,
			Value:     r.Value,
			ContextID: r.ContextID,
			Duration:  bench.FormatLatency(r.Duration.Round(time.Microsecond)),
		}
		if i < len(batch) {
			out[i].Task = batch[i].String()
		}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return out
}

func writeResultsJSON(w io.Writer, batch []isolate.TaskSpec, results []isolate.TaskResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toOutput(results, batch))
}

func renderResults(w io.Writer, batch []isolate.TaskSpec, results []isolate.TaskResult) error {
	table := tablewriter.NewWriter(w)
	table.Header("Index", "Task", "Result", "Context", "Duration")
	for _, o := range toOutput(results, batch) {
		outcome := fmt.Sprint(o.Value)
		if o.Error != "" {
			outcome = "error: " + o.Error
		}
		_ = table.Append(fmt.Sprint(o.Index), o.Task, outcome, o.ContextID, o.Duration)
	}
	return table.Render()
}

func (a *App) printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "isobench - compare isolated-context parallel execution against other strategies")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  isobench [options] [command]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  bench         Run the factorial benchmark on every runner (default)")
	fmt.Fprintln(w, "  run <file>    Execute a JSON batch file")
	fmt.Fprintln(w, "  namespaces    List registered namespaces and callables")
	fmt.Fprintln(w, "  version       Show version information")
	fmt.Fprintln(w, "  help          Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run Options (use with 'run' command):")
	fmt.Fprintln(w, "  -batch string")
	fmt.Fprintln(w, "        Path to a JSON batch file")
	fmt.Fprintln(w, "  -runner string")
	fmt.Fprintln(w, "        Runner to execute the batch with (default \"isolated\")")
}
