package isolate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestContextPool_AcquireRelease(t *testing.T) {
	pool := NewContextPool(newTestRegistry(t), WithMaxContexts(4))

	contexts, err := pool.Acquire(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contexts) != 3 {
		t.Fatalf("expected 3 contexts, got %d", len(contexts))
	}
	if pool.Live() != 3 {
		t.Errorf("expected 3 live contexts, got %d", pool.Live())
	}

	ids := make(map[string]bool)
	for _, ec := range contexts {
		if ec.State() != StateCreated {
			t.Errorf("context %s: expected state created, got %s", ec.ID(), ec.State())
		}
		ids[ec.ID()] = true
	}
	if len(ids) != 3 {
		t.Errorf("expected 3 distinct ids, got %d", len(ids))
	}

	if err := pool.Release(contexts); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}
	if pool.Live() != 0 {
		t.Errorf("expected no live contexts, got %d", pool.Live())
	}
	for _, ec := range contexts {
		if ec.State() != StateDestroyed {
			t.Errorf("context %s: expected state destroyed, got %s", ec.ID(), ec.State())
		}
	}
}

func TestContextPool_AcquireZero(t *testing.T) {
	pool := NewContextPool(newTestRegistry(t))

	for _, n := range []int{0, -3} {
		contexts, err := pool.Acquire(context.Background(), n)
		if err != nil {
			t.Errorf("Acquire(%d): unexpected error: %v", n, err)
		}
		if len(contexts) != 0 {
			t.Errorf("Acquire(%d): expected no contexts, got %d", n, len(contexts))
		}
	}
}

func TestContextPool_Exhaustion(t *testing.T) {
	pool := NewContextPool(newTestRegistry(t), WithMaxContexts(4))

	held, err := pool.Acquire(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = pool.Acquire(context.Background(), 2)
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected pool exhaustion, got %v", err)
	}
	if pool.Live() != 3 {
		t.Errorf("failed acquire must not leave contexts behind, got %d live", pool.Live())
	}

	if err := pool.Release(held); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}

	// The budget is back after release.
	contexts, err := pool.Acquire(context.Background(), 4)
	if err != nil {
		t.Fatalf("unexpected error after release: %v", err)
	}
	_ = pool.Release(contexts)
}

func TestContextPool_Unbounded(t *testing.T) {
	pool := NewContextPool(newTestRegistry(t), WithMaxContexts(-1))
	if pool.Limit() != 0 {
		t.Fatalf("expected no limit, got %d", pool.Limit())
	}

	contexts, err := pool.Acquire(context.Background(), DefaultMaxContexts+1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := pool.Release(contexts); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}
}

func TestContextPool_ReleaseTwice(t *testing.T) {
	pool := NewContextPool(newTestRegistry(t), WithMaxContexts(2))

	contexts, err := pool.Acquire(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := pool.Release(contexts); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}

	err = pool.Release(contexts)
	if !errors.Is(err, ErrContextReleased) {
		t.Fatalf("expected ErrContextReleased, got %v", err)
	}

	// A double release must not inflate the budget.
	contexts, err = pool.Acquire(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := pool.Acquire(context.Background(), 1); !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("expected budget of 2 to be full, got %v", err)
	}
	_ = pool.Release(contexts)
}

func TestContextPool_ReleaseForeignContext(t *testing.T) {
	reg := newTestRegistry(t)
	a := NewContextPool(reg, WithMaxContexts(1))
	b := NewContextPool(reg, WithMaxContexts(1))

	contexts, err := a.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := b.Release(contexts); !errors.Is(err, ErrContextReleased) {
		t.Errorf("expected foreign release to fail, got %v", err)
	}
	if contexts[0].State() != StateCreated {
		t.Errorf("foreign release destroyed the context")
	}
	if err := a.Release(contexts); err != nil {
		t.Errorf("unexpected release error: %v", err)
	}
}

func TestContextPool_AllocRetryWaitsForRelease(t *testing.T) {
	pool := NewContextPool(newTestRegistry(t),
		WithMaxContexts(2),
		WithAllocRetry(50, 5*time.Millisecond),
	)

	held, err := pool.Acquire(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		_ = pool.Release(held)
	}()

	contexts, err := pool.Acquire(context.Background(), 2)
	wg.Wait()
	if err != nil {
		t.Fatalf("expected retry to succeed after release, got %v", err)
	}
	_ = pool.Release(contexts)
}

func TestContextPool_AllocRetryHonorsContext(t *testing.T) {
	pool := NewContextPool(newTestRegistry(t),
		WithMaxContexts(1),
		WithAllocRetry(1000, 50*time.Millisecond),
	)

	held, err := pool.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer pool.Release(held)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = pool.Acquire(ctx, 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("acquire kept retrying for %v after the deadline", elapsed)
	}
}

func TestContextPool_SpawnRate(t *testing.T) {
	pool := NewContextPool(newTestRegistry(t), WithSpawnRate(100, 1))

	start := time.Now()
	contexts, err := pool.Acquire(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer pool.Release(contexts)

	// Burst of 1 at 100/s: four waits of ~10ms.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("expected spawn rate to slow creation, took %v", elapsed)
	}
}

func TestContextPool_SpawnRateCanceled(t *testing.T) {
	pool := NewContextPool(newTestRegistry(t), WithMaxContexts(10), WithSpawnRate(1, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := pool.Acquire(ctx, 3)

	var exhausted *PoolExhaustionError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *PoolExhaustionError, got %v", err)
	}
	if exhausted.Created != 1 {
		t.Errorf("expected 1 context created before the wait failed, got %d", exhausted.Created)
	}
	if pool.Live() != 0 {
		t.Errorf("expected partial allocation to be released, got %d live", pool.Live())
	}

	// The whole reservation was returned.
	contexts, err := pool.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = pool.Release(contexts)
}

func TestContextPool_AllocBackoff(t *testing.T) {
	tests := []struct {
		name  string
		opts  []Option
		check func(t *testing.T, delay time.Duration)
	}{
		{
			name: "default is jittered",
			opts: []Option{WithAllocRetry(3, 10*time.Millisecond)},
			check: func(t *testing.T, delay time.Duration) {
				if delay < 32*time.Millisecond || delay > 48*time.Millisecond {
					t.Errorf("expected 40ms +/- 20%%, got %v", delay)
				}
			},
		},
		{
			name: "zero jitter is exponential",
			opts: []Option{WithAllocRetry(3, 10*time.Millisecond), WithAllocBackoff(0, 0)},
			check: func(t *testing.T, delay time.Duration) {
				if delay != 40*time.Millisecond {
					t.Errorf("expected exactly 40ms, got %v", delay)
				}
			},
		},
		{
			name: "max delay caps the wait",
			opts: []Option{WithAllocRetry(3, 10*time.Millisecond), WithAllocBackoff(25*time.Millisecond, 0)},
			check: func(t *testing.T, delay time.Duration) {
				if delay != 25*time.Millisecond {
					t.Errorf("expected 25ms cap, got %v", delay)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewContextPool(newTestRegistry(t), tt.opts...)
			tt.check(t, pool.backoff.Delay(2))
		})
	}
}
