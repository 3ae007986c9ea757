//go:build linux

package fibersched

import "golang.org/x/sys/unix"

// affinitize pins the calling OS thread to logical CPU index, implementing
// the Affinitize flag on the one platform this module wires a syscall for.
// The caller must have already called runtime.LockOSThread(), or the
// affinity would apply to whatever OS thread happens to be running this
// goroutine at the moment and be meaningless afterward.
func affinitize(index int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(index)
	return unix.SchedSetaffinity(0, &set)
}
