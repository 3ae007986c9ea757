package fibersched

import (
	"sync/atomic"

	"github.com/quill-systems/fibersched/fiber"
)

// parkedWaiter records who is parked on a Counter and how to resume them.
// A waiter parked from inside a pooled fiber (fiberHandle set) is resumed
// by pushing that handle onto waitingFibers, so some worker's fiber loop
// eventually switches back into it. A waiter parked from outside the
// pool — an external caller such as a runnable example's main goroutine,
// which owns no fiber to yield — is resumed by a send on done rather than
// a close, so the same size-1 channel (Manager.doneChannels, allocated
// once per counter slot at Create) can be reused every cycle instead of
// allocated fresh per WaitForCounter call: a closed channel can't be
// un-closed for the next waiter on this slot, but a drained buffered
// channel can be sent on again.
type parkedWaiter struct {
	fiberHandle *fiber.Handle
	done        chan struct{}
}

// counterPadding brings Counter up to 64 bytes, one cache line, per
// spec §3. The 4 bytes after val are the alignment gap before the first
// pointer field. Only the size is fixed here; the counter array itself is
// an ordinary slice and is not cache-line aligned.
const counterPadding = 64 - 4 /* val */ - 4 /* alignment gap */ - 8 /* wakeManager ptr */ - 8 /* wakeWaiter ptr */ - 4 /* index */

// Counter is a fan-in synchronization point: RunJobs sets val to the
// number of tasks in the batch, each task decrements it on completion,
// and WaitForCounter blocks until it reaches the target value. index is
// this Counter's stable position in the Manager's counter array, fixed at
// Create time; it is how the counter finds its way back onto the
// openCounters freelist without ever exposing a pointer to callers.
type Counter struct {
	val         atomic.Uint32
	wakeManager atomic.Pointer[Manager]
	wakeWaiter  atomic.Pointer[parkedWaiter]
	index       uint32
	_           [counterPadding]byte
}

// decrementCounter implements spec §4.3's decrementer path: it runs once
// per completed task, and at most one decrement per counter will ever
// observe the transition to zero (fetch_sub is exclusive), so this
// function performs its wake-check at most once per RunJobs batch.
//
// The waiter field is claimed with Swap rather than a plain load: without
// that, a concurrent WaitForCounter that observes the counter already at
// zero and tries to self-resume (spec §4.3's race discipline, case where
// the parker's publish and the decrement interleave) would have no way to
// tell whether this decrementer had already claimed the waiter, and both
// sides could resume it.
func (m *Manager) decrementCounter(counterIndex uint32) {
	c := &m.counters[counterIndex]
	newVal := c.val.Add(^uint32(0)) // fetch_sub(1); Add(-1) via two's complement
	if newVal != 0 {
		return
	}
	if c.wakeManager.Load() == nil {
		return
	}
	if w := c.wakeWaiter.Swap(nil); w != nil {
		m.resumeWaiter(w)
	}
}

// resumeWaiter hands control back to a parked waiter, either by queuing
// its fiber for redispatch or by releasing a plain channel wait. The
// buffered send (never blocks: exactly one send is paired with exactly
// one receive per cycle, and the channel is drained before its slot can
// be reused) is what lets done be a reused, not freshly allocated, channel.
func (m *Manager) resumeWaiter(w *parkedWaiter) {
	if w.fiberHandle != nil {
		mustPush(m.waitingFibers, w.fiberHandle, "waitingFibers")
		return
	}
	w.done <- struct{}{}
}

// releaseCounter zeroes a spent Counter and returns it to openCounters,
// per spec §4.3's "Counter return".
func (m *Manager) releaseCounter(c *Counter) {
	c.val.Store(0)
	c.wakeWaiter.Store(nil)
	c.wakeManager.Store(nil)
	mustPush(m.openCounters, c.index, "openCounters")
}
