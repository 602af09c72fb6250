package isolate

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric label values for task outcomes.
const (
	outcomeSucceeded    = "succeeded"
	outcomeLookupFailed = "lookup_failed"
	outcomeExecFailed   = "execution_failed"
)

var (
	contextsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "isopool_contexts_created_total",
			Help: "Total number of isolated execution contexts created.",
		},
	)

	contextsDestroyed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "isopool_contexts_destroyed_total",
			Help: "Total number of isolated execution contexts destroyed.",
		},
	)

	contextsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "isopool_contexts_live",
			Help: "Number of execution contexts currently alive.",
		},
	)

	poolExhaustions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "isopool_pool_exhaustions_total",
			Help: "Total number of batches rejected because contexts could not be allocated.",
		},
	)

	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isopool_tasks_total",
			Help: "Total number of tasks executed, by outcome.",
		},
		[]string{"outcome"},
	)

	taskDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "isopool_task_duration_seconds",
			Help:    "Time a task spent inside its execution context, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	batchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "isopool_batch_duration_seconds",
			Help:    "Wall time of one Execute call from acquisition to release, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(contextsCreated)
	prometheus.MustRegister(contextsDestroyed)
	prometheus.MustRegister(contextsLive)
	prometheus.MustRegister(poolExhaustions)
	prometheus.MustRegister(tasksTotal)
	prometheus.MustRegister(taskDuration)
	prometheus.MustRegister(batchDuration)

	// Pre-initialize outcome labels so they are exported with value 0.
	for _, outcome := range []string{outcomeSucceeded, outcomeLookupFailed, outcomeExecFailed} {
		tasksTotal.WithLabelValues(outcome)
	}
}

func observeTask(r TaskResult) {
	taskDuration.Observe(r.Duration.Seconds())
	tasksTotal.WithLabelValues(outcomeLabel(r.Err)).Inc()
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return outcomeSucceeded
	case errors.Is(err, ErrTaskLookup):
		return outcomeLookupFailed
	default:
		return outcomeExecFailed
	}
}
