//go:build linux

package cpu

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// BindThread locks the calling goroutine to its current OS thread so the
// thread is dedicated to one task. When pin is set the thread is also
// restricted to one of the cores it is allowed on, chosen by slot. The
// returned function restores the previous affinity and unlocks the thread.
func BindThread(slot int, pin bool) (release func()) {
	runtime.LockOSThread()

	if !pin {
		return runtime.UnlockOSThread
	}

	var previous unix.CPUSet
	if err := unix.SchedGetaffinity(0, &previous); err != nil {
		return runtime.UnlockOSThread
	}
	allowed := cores(&previous)
	if len(allowed) == 0 {
		return runtime.UnlockOSThread
	}

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(allowed[wrap(slot, len(allowed))])
	if err := unix.SchedSetaffinity(0, &mask); err != nil { // 0 = current thread
		return runtime.UnlockOSThread
	}

	return func() {
		_ = unix.SchedSetaffinity(0, &previous)
		runtime.UnlockOSThread()
	}
}

// Pinned reports the cores the calling thread may run on.
func Pinned() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, err
	}
	return cores(&set), nil
}

func cores(set *unix.CPUSet) []int {
	n := set.Count()
	out := make([]int, 0, n)
	for i := 0; len(out) < n; i++ {
		if set.IsSet(i) {
			out = append(out, i)
		}
	}
	return out
}
