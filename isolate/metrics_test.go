package isolate

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_TaskOutcomes(t *testing.T) {
	succeeded := testutil.ToFloat64(tasksTotal.WithLabelValues(outcomeSucceeded))
	lookup := testutil.ToFloat64(tasksTotal.WithLabelValues(outcomeLookupFailed))
	execFailed := testutil.ToFloat64(tasksTotal.WithLabelValues(outcomeExecFailed))
	created := testutil.ToFloat64(contextsCreated)
	destroyed := testutil.ToFloat64(contextsDestroyed)

	batch := []TaskSpec{
		NewTask("bench", "factorial", 3),
		NewTask("bench", "factorial", 4),
		NewTask("bench", "missing"),
		NewTask("bench", "explode"),
	}
	if _, err := Execute(context.Background(), newTestRegistry(t), batch, WithMode(CollectAll)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"succeeded", testutil.ToFloat64(tasksTotal.WithLabelValues(outcomeSucceeded)) - succeeded, 2},
		{"lookup_failed", testutil.ToFloat64(tasksTotal.WithLabelValues(outcomeLookupFailed)) - lookup, 1},
		{"execution_failed", testutil.ToFloat64(tasksTotal.WithLabelValues(outcomeExecFailed)) - execFailed, 1},
		{"contexts created", testutil.ToFloat64(contextsCreated) - created, 4},
		{"contexts destroyed", testutil.ToFloat64(contextsDestroyed) - destroyed, 4},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected delta %v, got %v", c.name, c.want, c.got)
		}
	}
}

func TestMetrics_Exhaustion(t *testing.T) {
	before := testutil.ToFloat64(poolExhaustions)

	_, err := Execute(context.Background(), newTestRegistry(t), factorialBatch(1, 2, 3), WithMaxContexts(2))
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if got := testutil.ToFloat64(poolExhaustions) - before; got != 1 {
		t.Errorf("expected one exhaustion, got %v", got)
	}
}

func TestOutcomeLabel(t *testing.T) {
	if got := outcomeLabel(nil); got != outcomeSucceeded {
		t.Errorf("expected %s, got %s", outcomeSucceeded, got)
	}
	if got := outcomeLabel(&TaskLookupError{}); got != outcomeLookupFailed {
		t.Errorf("expected %s, got %s", outcomeLookupFailed, got)
	}
	if got := outcomeLabel(&ExecutionError{}); got != outcomeExecFailed {
		t.Errorf("expected %s, got %s", outcomeExecFailed, got)
	}
}
