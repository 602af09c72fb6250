package algorithms

import "time"

// BackoffType selects how long the context pool waits between allocation
// attempts when its live-context budget is momentarily exhausted.
type BackoffType int

const (
	// BackoffExponential doubles the wait after every failed attempt.
	BackoffExponential BackoffType = iota
	// BackoffJittered randomizes each exponential wait by a jitter factor so
	// concurrent batches do not retry in lockstep.
	BackoffJittered
)

// NewBackoff returns the Backoff for backoffType. Unknown types fall back to
// exponential backoff.
func NewBackoff(backoffType BackoffType, initialDelay, maxDelay time.Duration, jitterFactor float64) Backoff {
	if maxDelay < initialDelay {
		maxDelay = initialDelay
	}

	switch backoffType {
	case BackoffJittered:
		return newJitteredBackoff(initialDelay, maxDelay, jitterFactor)
	default:
		return newExponentialBackoff(initialDelay, maxDelay)
	}
}
