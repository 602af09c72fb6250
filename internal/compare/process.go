package compare

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/utkarsh5026/isopool/isolate"
	"golang.org/x/sync/errgroup"
)

// request is what the parent writes to a worker's stdin.
type request struct {
	Index     int
	Namespace string
	Callable  string
	Args      []any
}

// response is what a worker writes to its stdout.
type response struct {
	Value   any
	Failure *failure
}

type failure struct {
	Lookup  bool
	Missing string
	Kind    string
	Message string
}

// Process runs every task in its own operating system process. The binary is
// started with args and must answer on stdin and stdout the way ServeWorker
// does.
type Process struct {
	binary string
	args   []string

	// Env is appended to the parent's environment for every worker.
	Env []string
}

func NewProcess(binary string, args ...string) *Process {
	return &Process{binary: binary, args: args}
}

func (r *Process) Name() string { return "process" }

func (r *Process) Execute(ctx context.Context, batch []isolate.TaskSpec) ([]isolate.TaskResult, error) {
	results := make([]isolate.TaskResult, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range batch {
		g.Go(func() error {
			result, err := r.run(gctx, i, spec)
			if err != nil {
				return fmt.Errorf("task %d: worker process: %w", i, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, isolate.FirstFailure(results)
}

func (r *Process) run(ctx context.Context, index int, spec isolate.TaskSpec) (isolate.TaskResult, error) {
	var stdin, stdout, stderr bytes.Buffer
	req := request{Index: index, Namespace: spec.Namespace, Callable: spec.Callable, Args: spec.Args}
	if err := gob.NewEncoder(&stdin).Encode(req); err != nil {
		return isolate.TaskResult{}, &isolate.TransferError{Index: index, Direction: "argument", Err: err}
	}

	cmd := exec.CommandContext(ctx, r.binary, r.args...)
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.Stdin = &stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return isolate.TaskResult{}, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	elapsed := time.Since(start)

	var resp response
	if err := gob.NewDecoder(&stdout).Decode(&resp); err != nil {
		return isolate.TaskResult{}, fmt.Errorf("decode response: %w", err)
	}

	result := isolate.TaskResult{
		Index:     index,
		Value:     resp.Value,
		ContextID: fmt.Sprintf("pid-%d", cmd.ProcessState.Pid()),
		Duration:  elapsed,
	}
	if resp.Failure != nil {
		result.Value = nil
		result.Err = resp.Failure.toError(index, spec)
	}
	return result, nil
}

func (f *failure) toError(index int, spec isolate.TaskSpec) error {
	if f.Lookup {
		return &isolate.TaskLookupError{
			Index:     index,
			Namespace: spec.Namespace,
			Callable:  spec.Callable,
			Missing:   f.Missing,
		}
	}
	return &isolate.ExecutionError{
		Index:     index,
		Namespace: spec.Namespace,
		Callable:  spec.Callable,
		Kind:      f.Kind,
		Message:   f.Message,
	}
}

// ServeWorker answers a single request read from r by running it against a
// fresh instance of reg's namespaces and writing the response to w.
func ServeWorker(r io.Reader, w io.Writer, reg *isolate.Registry) error {
	var req request
	if err := gob.NewDecoder(r).Decode(&req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}

	rt := isolate.NewSharedRuntime(reg, nil)
	result := rt.Call(req.Index, isolate.TaskSpec{
		Namespace: req.Namespace,
		Callable:  req.Callable,
		Args:      req.Args,
	})

	var buf bytes.Buffer
	resp := response{Value: result.Value, Failure: toFailure(result.Err)}
	if err := gob.NewEncoder(&buf).Encode(resp); err != nil {
		buf.Reset()
		resp = response{Failure: &failure{Kind: "transfer", Message: err.Error()}}
		if err := gob.NewEncoder(&buf).Encode(resp); err != nil {
			return err
		}
	}

	_, err := buf.WriteTo(w)
	return err
}

func toFailure(err error) *failure {
	if err == nil {
		return nil
	}

	switch e := err.(type) {
	case *isolate.TaskLookupError:
		return &failure{Lookup: true, Missing: e.Missing}
	case *isolate.ExecutionError:
		return &failure{Kind: e.Kind, Message: e.Message}
	default:
		return &failure{Kind: "error", Message: err.Error()}
	}
}
