//go:build !linux && !darwin && !windows

package cpu

import (
	"errors"
	"runtime"
)

// BindThread locks the goroutine to an OS thread; pinning is unsupported here.
func BindThread(slot int, pin bool) (release func()) {
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}

// Pinned is not supported on this platform.
func Pinned() ([]int, error) {
	return nil, errors.New("cpu affinity is not supported on " + runtime.GOOS)
}
