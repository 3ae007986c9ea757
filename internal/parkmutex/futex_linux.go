//go:build linux

package parkmutex

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// linux/futex.h values; x/sys/unix exposes SYS_FUTEX but not these op
// codes, so they're named locally the same way the original C++ source
// pulls them from <linux/futex.h> directly.
const (
	futexWait = 0
	futexWake = 1
)

// sysWait blocks until the word at addr changes away from expected, using
// the Linux futex syscall — the FUTEX_WAIT side of spec §4.2's "OS futex
// primitive: wait-on-address with expected value". Spurious wakes are
// allowed and handled by the caller's retry loop in Lock.
func sysWait(addr *atomic.Uint32, expected uint32) {
	for {
		_, _, errno := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)), futexWait, uintptr(expected), 0, 0, 0)
		if errno == 0 || errno == unix.EAGAIN || errno == unix.EINTR {
			return
		}
	}
}

// sysWake wakes every waiter on addr — the FUTEX_WAKE side. Waking all is
// acceptable per spec §4.2 because the number of waiters is bounded by the
// worker count.
func sysWake(addr *atomic.Uint32) {
	_, _, _ = unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)), futexWake, uintptr(1<<30), 0, 0, 0)
}
