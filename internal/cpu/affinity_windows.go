//go:build windows

package cpu

import (
	"errors"
	"runtime"
	"syscall"
)

var (
	kernel32              = syscall.NewLazyDLL("kernel32.dll")
	setThreadAffinityMask = kernel32.NewProc("SetThreadAffinityMask")
	getCurrentThread      = kernel32.NewProc("GetCurrentThread")
)

// BindThread locks the calling goroutine to its current OS thread and, when
// pin is set, restricts it to a single core derived from slot. The returned
// function restores the previous mask and unlocks the thread.
func BindThread(slot int, pin bool) (release func()) {
	runtime.LockOSThread()

	if !pin {
		return runtime.UnlockOSThread
	}

	handle, _, _ := getCurrentThread.Call()
	previous, _, _ := setThreadAffinityMask.Call(handle, uintptr(1)<<uint(wrap(slot, NumCPU())))
	if previous == 0 {
		return runtime.UnlockOSThread
	}

	return func() {
		_, _, _ = setThreadAffinityMask.Call(handle, previous)
		runtime.UnlockOSThread()
	}
}

// Pinned is not implemented on Windows.
func Pinned() ([]int, error) {
	return nil, errors.New("reading cpu affinity is not supported on windows")
}
