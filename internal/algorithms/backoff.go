package algorithms

import (
	"math/rand"
	"sync"
	"time"
)

// maxShift bounds the exponent so 1<<attempt cannot overflow.
const maxShift = 62

// Backoff computes the wait before a retry. Implementations are safe for
// concurrent use because one pool serves many concurrent batches.
type Backoff interface {
	// Delay returns the wait before retry number attempt (0 = first retry).
	Delay(attempt int) time.Duration
}

// exponentialBackoff waits initialDelay * 2^attempt, capped at maxDelay.
type exponentialBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
}

func newExponentialBackoff(initialDelay, maxDelay time.Duration) *exponentialBackoff {
	return &exponentialBackoff{initialDelay: initialDelay, maxDelay: maxDelay}
}

func (eb *exponentialBackoff) Delay(attempt int) time.Duration {
	return exponentialDelay(attempt, eb.initialDelay, eb.maxDelay)
}

// jitteredBackoff scales the exponential delay by a random factor in
// [1-jitter, 1+jitter].
type jitteredBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	jitter       float64

	mu  sync.Mutex
	rng *rand.Rand
}

func newJitteredBackoff(initialDelay, maxDelay time.Duration, jitter float64) *jitteredBackoff {
	return &jitteredBackoff{
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		jitter:       clamp(jitter, 0, 1),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter does not need crypto rand
	}
}

func (jb *jitteredBackoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}

	base := exponentialDelay(attempt, jb.initialDelay, jb.maxDelay)

	jb.mu.Lock()
	factor := 1 + (jb.rng.Float64()*2-1)*jb.jitter
	jb.mu.Unlock()

	return clamp(time.Duration(float64(base)*factor), 0, jb.maxDelay)
}

func exponentialDelay(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		return 0
	}
	if attempt > maxShift {
		return maxDelay
	}

	delay := time.Duration(int64(1)<<uint(attempt)) * initialDelay
	if delay > maxDelay || delay < 0 {
		return maxDelay
	}
	return delay
}

func clamp[T ~int64 | ~float64](v, lo, hi T) T {
	return max(lo, min(v, hi))
}
