package fibersched

// RunJobs implements spec §4.6: it allocates a Counter set to len(tasks),
// distributes the tasks round-robin across worker queues, unparks every
// worker that received at least one task, and returns the Counter for a
// later WaitForCounter call.
//
// Worker w receives at least one task iff w < min(len(tasks), numWorkers)
// — round robin assigns indices 0..len(tasks)-1 to i%numWorkers in order,
// so the set of workers touched is always a prefix of [0, numWorkers).
// Computing it this way (instead of tracking a "touched" set) means
// RunJobs performs no allocation, preserving spec §5's zero-steady-state-
// allocation property.
//
// A full worker queue or an exhausted counter pool panics immediately, per
// spec §7 — both indicate the pool was sized too small for this workload,
// not a condition the caller can usefully recover from.
func RunJobs(m *Manager, tasks []Task) *Counter {
	n := len(tasks)
	if n == 0 {
		panic("fibersched: RunJobs called with no tasks")
	}

	counterIndex, ok := m.openCounters.TryPop()
	if !ok {
		panic("fibersched: counter pool exhausted")
	}
	c := &m.counters[counterIndex]
	c.val.Store(uint32(n))
	c.wakeWaiter.Store(nil)
	c.wakeManager.Store(nil)

	for i, t := range tasks {
		w := i % m.numWorkers
		if !m.workerQueues[w].TryPush(QueuedTask{Task: t, CounterIndex: counterIndex}) {
			panic("fibersched: worker task queue full")
		}
		m.metrics.RecordQueueDepth(w, m.workerQueues[w].ApproxSize())
	}
	m.tasksSubmitted.Add(uint64(n))

	touched := n
	if touched > m.numWorkers {
		touched = m.numWorkers
	}
	for w := 0; w < touched; w++ {
		m.workerLocks[w].TryLock()
		m.workerLocks[w].Unlock()
	}

	return c
}
