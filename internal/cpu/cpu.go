// Package cpu binds worker goroutines to dedicated OS threads and, where the
// platform allows it, to individual cores.
package cpu

import "runtime"

// NumCPU returns the number of logical CPUs available.
func NumCPU() int {
	return runtime.NumCPU()
}

// wrap maps slot onto [0, n).
func wrap(slot, n int) int {
	slot %= n
	if slot < 0 {
		slot += n
	}
	return slot
}
