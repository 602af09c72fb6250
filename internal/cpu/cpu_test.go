package cpu

import (
	"runtime"
	"sync"
	"testing"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		slot int
		n    int
		want int
	}{
		{slot: 0, n: 4, want: 0},
		{slot: 4, n: 4, want: 0},
		{slot: 5, n: 4, want: 1},
		{slot: -1, n: 4, want: 3},
		{slot: 7, n: 1, want: 0},
	}

	for _, tt := range tests {
		if got := wrap(tt.slot, tt.n); got != tt.want {
			t.Errorf("wrap(%d, %d) = %d, want %d", tt.slot, tt.n, got, tt.want)
		}
	}
}

func TestBindThread_Unpinned(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		release := BindThread(3, false)
		release()
	}()
	<-done
}

func TestBindThread_PinnedRestoresAffinity(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("affinity inspection only on linux")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		before, err := Pinned()
		if err != nil {
			t.Errorf("Pinned: %v", err)
			return
		}

		release := BindThread(0, true)
		during, err := Pinned()
		if err != nil {
			t.Errorf("Pinned: %v", err)
		}
		if len(during) != 1 {
			t.Errorf("expected thread pinned to one core, got %v", during)
		}
		release()

		// LockOSThread nests, so the thread is still ours here.
		after, err := Pinned()
		if err != nil {
			t.Errorf("Pinned: %v", err)
		}
		if len(after) != len(before) {
			t.Errorf("affinity not restored: before %v, after %v", before, after)
		}
	}()
	wg.Wait()
}
