package fibersched

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/quill-systems/fibersched/fiber"
)

// fiberEntry is the entry point every pooled fiber runs (spec §4.5): a
// loop that parks when idle, otherwise drains its current worker's task
// queue, yielding to a ready waitingFibers entry ahead of fresh work at
// each NextTask check. self is re-read for its worker index on every
// iteration rather than cached in a local, because a fiber parked via
// WaitForCounter can resume on a different worker than the one it parked
// on — spec §4.5's TLS-staleness hazard, resolved here simply by never
// caching the index across a yield point instead of guarding a TLS read.
func (m *Manager) fiberEntry(self *fiber.Handle, userData any) {
	for {
		idx := self.WorkerIndex()

		if m.shutdown.Load() {
			m.retireFiber(self, idx)
			return
		}

		if m.workerQueues[idx].ApproxSize() == 0 && m.waitingFibers.ApproxSize() == 0 {
			m.workerLocks[idx].Lock()
			m.workerLocks[idx].Unlock()

			if m.shutdown.Load() {
				m.retireFiber(self, self.WorkerIndex())
				return
			}
		}

		for {
			idx = self.WorkerIndex()
			qt, yielded, retired, ok := m.nextTask(self, idx)
			if retired {
				return // self sat on openFibers and Destroy tore it down directly
			}
			if yielded {
				break // resumed, possibly on a different worker; start over
			}
			if !ok {
				break // nothing ready right now; re-check the park condition
			}
			m.executeTask(self, qt)
		}
	}
}

// nextTask is the yield point described in spec §4.5: a ready waiting
// fiber is given priority over fresh work, so a fan-in wait's resumption
// is not starved by an endless stream of new tasks landing on the same
// worker (spec §8's S4 worker-starvation property).
//
// Yielding here pushes self onto openFibers with no guarantee anything
// will ever pop it again before Destroy — a run that never performs
// another pooled WaitForCounter park after this point would otherwise
// leave self parked forever. SwitchToFiber reports that case back as
// retired=true so the caller exits instead of hanging Destroy.
func (m *Manager) nextTask(self *fiber.Handle, idx int) (qt QueuedTask, yielded, retired, ok bool) {
	if m.waitingFibers.ApproxSize() > 0 {
		if wf, popped := m.waitingFibers.TryPop(); popped {
			mustPush(m.openFibers, self, "openFibers")
			if !m.provider.SwitchToFiber(self, wf, idx) {
				return QueuedTask{}, false, true, false
			}
			return QueuedTask{}, true, false, false
		}
	}
	qt, ok = m.workerQueues[idx].TryPop()
	return qt, false, false, ok
}

// executeTask runs one task and applies its counter decrement, recovering
// from a task panic just long enough to hand it to the PanicHandler
// (which re-panics by default, preserving spec §7's "escapes as a
// process-level abort" for ordinary use).
func (m *Manager) executeTask(self *fiber.Handle, qt QueuedTask) {
	workerIndex := self.WorkerIndex()

	defer func() {
		if r := recover(); r != nil {
			m.metrics.RecordTaskPanic(workerIndex)
			m.decrementCounter(qt.CounterIndex)
			m.tasksCompleted.Add(1)
			m.panicHandler.HandlePanic(workerIndex, r, debug.Stack())
		}
	}()

	start := time.Now()
	ctx := self.UserContext()
	if ctx == nil {
		// Built once per fiber and cached, not once per task: m and self
		// never change across this fiber's lifetime, only the worker index
		// self.WorkerIndex() reports, which fiberFromContext's caller reads
		// fresh off the handle rather than out of ctx. Rebuilding this on
		// every dispatch would cost a context.WithValue allocation per
		// task, which spec §5's zero-steady-state-allocation property rules
		// out once the fiber pool has warmed up.
		ctx = withFiberContext(context.Background(), m, self)
		self.SetUserContext(ctx)
	}
	qt.Task(ctx)
	m.metrics.RecordTaskDuration(workerIndex, time.Since(start))
	m.decrementCounter(qt.CounterIndex)
	m.tasksCompleted.Add(1)
}

// retireFiber hands control back to the worker's thread fiber one final
// time and returns, letting this fiber's goroutine exit for good. It must
// only be called from inside fiberEntry, immediately before returning.
func (m *Manager) retireFiber(self *fiber.Handle, idx int) {
	threadFiber := m.threadFibers[idx].Load()
	self.SwitchAndExit(threadFiber, idx)
}
