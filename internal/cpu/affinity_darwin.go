//go:build darwin

package cpu

import (
	"errors"
	"runtime"
)

// BindThread locks the goroutine to an OS thread.
// CPU pinning is not available on macOS, so pin is ignored.
func BindThread(slot int, pin bool) (release func()) {
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}

// Pinned is not supported on macOS.
func Pinned() ([]int, error) {
	return nil, errors.New("cpu affinity is not supported on darwin")
}
