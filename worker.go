package fibersched

import "runtime"

// workerLoop is worker thread i's body (spec §4.4). It installs the
// worker index by launching this exact goroutine with it (the redesign
// spec §9 prefers over thread-local storage), converts the goroutine into
// a fiber, then repeatedly parks, pops an open fiber, and switches to it
// until shutdown.
func (m *Manager) workerLoop(i int) {
	defer m.wg.Done()

	if m.flags&Affinitize != 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := affinitize(i); err != nil {
			m.logger.Warn("affinitize failed", F("worker_index", i), F("error", err.Error()))
		}
	}

	threadFiber := m.provider.InitForThread()
	m.threadFibers[i].Store(threadFiber)

	for !m.shutdown.Load() {
		m.metrics.RecordWorkerParked(i)
		m.workerLocks[i].Lock()
		m.workerLocks[i].Unlock()

		if m.shutdown.Load() {
			break
		}

		fh := m.popOpenFiber()
		m.provider.SwitchToFiber(threadFiber, fh, i) // threadFiber has no shutdownC; always resumes normally
		// Control returns here only once the fiber just switched to
		// observes shutdown and retires back to this thread fiber.
	}
}
