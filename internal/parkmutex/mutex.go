// Package parkmutex implements the scheduler's futex-backed "light mutex":
// a parking gate, not a critical section. It is grounded on
// light_mutex.cpp/light_mutex.h in the original fiberTaskingLib source and
// backs the worker parking mechanism in spec §4.2.
//
// A worker thread both locks and unlocks its own Mutex to park itself while
// idle: while the Mutex is held, Lock blocks until some other goroutine
// calls Unlock; on an unlocked Mutex it returns at once. RunJobs (or
// Destroy) calls TryLock then Unlock to release a parked worker; that
// sequence is idempotent by design — it succeeds whether or not the worker
// was actually parked.
package parkmutex

import "sync/atomic"

const (
	unlocked uint32 = iota
	lockedNoWaiting
	lockedThreadsWaiting
)

// Mutex is the futex-backed parking gate described in spec §4.2. The zero
// value starts unlocked; New(true) is used to start a worker's mutex
// pre-locked so it blocks on first entry.
type Mutex struct {
	state atomic.Uint32
}

// New returns a Mutex, optionally starting in the locked-no-waiting state
// (workers start locked so their first park blocks until RunJobs wakes
// them).
func New(startLocked bool) *Mutex {
	m := &Mutex{}
	if startLocked {
		m.state.Store(lockedNoWaiting)
	}
	return m
}

// TryLock attempts to move the mutex from unlocked to locked-no-waiting.
// It returns whether it succeeded.
func (m *Mutex) TryLock() bool {
	return m.state.CompareAndSwap(unlocked, lockedNoWaiting)
}

// Lock acquires the mutex. If it is already held, Lock blocks the calling
// goroutine until Unlock is called by someone else; if it is unlocked, Lock
// returns immediately. This is the worker's idle-parking primitive, not mutual exclusion: the
// lock is acquired and released by the same goroutine as a level-triggered
// gate.
func (m *Mutex) Lock() {
	if m.state.CompareAndSwap(unlocked, lockedNoWaiting) {
		return
	}

	for {
		old := m.state.Load()
		if old == lockedThreadsWaiting || !m.state.CompareAndSwap(lockedNoWaiting, lockedThreadsWaiting) {
			sysWait(&m.state, lockedThreadsWaiting)
		}
		if m.state.CompareAndSwap(unlocked, lockedThreadsWaiting) {
			return
		}
	}
}

// Unlock releases the mutex. If other goroutines are parked in Lock, they
// are all woken; the caller does not need to know whether anyone was
// actually waiting. Unlocking an already-unlocked mutex is a safe no-op —
// there is no lost wake, since a goroutine that is not yet parked will
// observe the unlocked state on its next TryLock/CompareAndSwap attempt.
func (m *Mutex) Unlock() {
	// atomic.Uint32 has no FetchSub; Add(-1) via two's complement wraparound
	// gives the same fetch-and-subtract the source performs, and old = new+1
	// recovers the pre-decrement value (the source's fetch_sub return).
	newState := m.state.Add(^uint32(0))
	old := newState + 1
	if old != lockedNoWaiting {
		m.state.Store(unlocked)
		sysWake(&m.state)
	}
}
