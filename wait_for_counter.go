package fibersched

import "context"

// WaitForCounter blocks until c's value has dropped to target, per
// spec §4.3's parker path, then returns c to the openCounters freelist.
//
// If ctx carries the identity of a pooled fiber (set by executeTask when
// it invoked the task that is calling WaitForCounter), parking yields the
// underlying worker to another fiber via a real fiber switch instead of
// blocking an OS thread — this is what makes nested RunJobs/WaitForCounter
// calls (spec §8's S2) cheap. Called with a plain context.Context from
// outside the pool (an external caller's own goroutine, e.g. a runnable
// example's main), it instead blocks that goroutine directly: there is no
// fiber to yield, and blocking the caller's own goroutine is exactly what
// it asked for.
//
// target generalizes the almost-always-zero wait threshold per spec §9's
// resolution of the corresponding open question, with one caveat: the
// decrementer only ever raises a wake for the true zero crossing (spec
// §4.3's decrementer path checks "previous value was 1", not an arbitrary
// threshold), so a WaitForCounter(_, _, target > 0) call only resumes
// early if the counter has already reached target by the time it
// publishes; otherwise it waits for the counter to reach zero like any
// other caller.
func WaitForCounter(ctx context.Context, m *Manager, c *Counter, target uint32) {
	selfHandle, pooled := fiberFromContext(ctx)

	// waiter is this counter slot's pre-allocated parkedWaiter (see
	// Manager.waiterSlots), reused across every cycle this counter index
	// is handed out for, rather than a fresh allocation per call — part of
	// spec §5's zero-steady-state-allocation property. Both fields are
	// reset before use since a prior cycle on this same slot may have left
	// either populated.
	waiter := &m.waiterSlots[c.index]
	waiter.fiberHandle = nil
	waiter.done = nil
	if pooled {
		waiter.fiberHandle = selfHandle
	} else {
		waiter.done = m.doneChannels[c.index]
	}

	c.wakeWaiter.Store(waiter) // fiber-identifying field published first...
	c.wakeManager.Store(m)     // ...then the manager, per spec §4.3's ordering note

	if c.val.Load() <= target {
		if c.wakeWaiter.CompareAndSwap(waiter, nil) {
			// The decrementer had not yet (and now never will) claim this
			// waiter: we are responsible for our own resumption.
			m.releaseCounter(c)
			return
		}
		// Lost the race: the decrementer already claimed and is resuming
		// us the normal way. Fall through and actually wait for it.
	}

	if pooled {
		openFiber := m.popOpenFiber()
		m.provider.SwitchToFiber(selfHandle, openFiber, selfHandle.WorkerIndex())
	} else {
		<-waiter.done
	}

	m.releaseCounter(c)
}
