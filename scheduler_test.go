package fibersched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// TestRunJobs_FanOutFanIn is scenario S1 from spec §8: 1000 tasks each
// increment a shared atomic; after WaitForCounter the atomic equals 1000.
func TestRunJobs_FanOutFanIn(t *testing.T) {
	m := Create(4, 16, 300, 0, None)
	defer Destroy(m)

	var n atomic.Int64
	tasks := make([]Task, 1000)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) { n.Add(1) }
	}

	c := RunJobs(m, tasks)
	waitWithTimeout(t, func() { WaitForCounter(context.Background(), m, c, 0) }, 5*time.Second)

	if got := n.Load(); got != 1000 {
		t.Fatalf("completed tasks = %d, want 1000", got)
	}
}

// TestNestedWaitForCounter is scenario S2: a task itself calls RunJobs
// with 10 subtasks, then WaitForCounter on the resulting counter, before
// the outer task (and its own counter) completes.
func TestNestedWaitForCounter(t *testing.T) {
	m := Create(4, 16, 64, 0, None)
	defer func() { waitWithTimeout(t, func() { Destroy(m) }, 2*time.Second) }()

	var inner atomic.Int64
	outer := RunJobs(m, []Task{
		func(ctx context.Context) {
			subtasks := make([]Task, 10)
			for i := range subtasks {
				subtasks[i] = func(context.Context) { inner.Add(1) }
			}
			innerCounter := RunJobs(m, subtasks)
			WaitForCounter(ctx, m, innerCounter, 0)
		},
	})

	waitWithTimeout(t, func() { WaitForCounter(context.Background(), m, outer, 0) }, 5*time.Second)

	if got := inner.Load(); got != 10 {
		t.Fatalf("inner subtasks completed = %d, want 10", got)
	}
}

// TestDestroy_AfterPooledParkLeavesNoUnreclaimedFiber guards against a
// regression where nextTask's yield-to-a-ready-waiter path (spec §4.5)
// parks the yielding fiber on openFibers with nothing guaranteed to ever
// pop it again. A pooled nested wait followed by only an external
// (non-pooled) WaitForCounter — a single nested fan-out-then-wait —
// must not leave such a fiber stranded: Destroy has to reclaim it
// directly rather than hang waiting for a switch that will never come.
func TestDestroy_AfterPooledParkLeavesNoUnreclaimedFiber(t *testing.T) {
	m := Create(2, 8, 32, 0, None)

	leafRan := make(chan struct{})
	outer := RunJobs(m, []Task{
		func(ctx context.Context) {
			inner := RunJobs(m, []Task{
				func(context.Context) { close(leafRan) },
			})
			WaitForCounter(ctx, m, inner, 0)
		},
	})

	select {
	case <-leafRan:
	case <-time.After(2 * time.Second):
		t.Fatalf("leaf task never ran")
	}

	// Only an external, non-pooled wait follows: no further pooled
	// WaitForCounter park occurs to reclaim whatever fiber yielded away
	// while the outer task's inner wait was resolving.
	waitWithTimeout(t, func() { WaitForCounter(context.Background(), m, outer, 0) }, 2*time.Second)

	waitWithTimeout(t, func() { Destroy(m) }, 2*time.Second)
}

// TestWaitForCounter_RacyPublish is scenario S3: a single task's body
// finishes before WaitForCounter is ever called. The task's counter
// decrement runs just after its body, so WaitForCounter either takes the
// self-resume path or is resumed by that decrement; either way it must
// return promptly.
func TestWaitForCounter_RacyPublish(t *testing.T) {
	m := Create(2, 8, 32, 0, None)
	defer Destroy(m)

	taskDone := make(chan struct{})
	c := RunJobs(m, []Task{
		func(context.Context) { close(taskDone) },
	})

	select {
	case <-taskDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("task never ran")
	}

	waitWithTimeout(t, func() { WaitForCounter(context.Background(), m, c, 0) }, 100*time.Millisecond)
}

// TestWorkerStarvation is a relaxed form of scenario S4: a task parked
// (via WaitForCounter, not a raw blocking call — the only kind of wait
// the scheduler can ever see from cooperating task code) on a counter
// that has not yet resolved does not prevent an unrelated batch of tasks
// from completing. Spec §8 illustrates this with W=1; here W=2 keeps the
// test's timing deterministic (the unrelated batch's round-robin
// assignment is guaranteed a worker not hosting the parked fiber) without
// weakening the property under test.
func TestWorkerStarvation(t *testing.T) {
	m := Create(2, 8, 32, 0, None)
	defer func() { waitWithTimeout(t, func() { Destroy(m) }, 2*time.Second) }()

	gate := make(chan struct{})
	outerStarted := make(chan struct{})

	outer := RunJobs(m, []Task{
		func(ctx context.Context) {
			innerCounter := RunJobs(m, []Task{
				func(context.Context) { <-gate },
			})
			close(outerStarted)
			WaitForCounter(ctx, m, innerCounter, 0)
		},
	})

	select {
	case <-outerStarted:
	case <-time.After(2 * time.Second):
		t.Fatalf("outer task never started")
	}

	var n atomic.Int64
	tasks := make([]Task, 50)
	for i := range tasks {
		tasks[i] = func(context.Context) { n.Add(1) }
	}
	second := RunJobs(m, tasks)
	waitWithTimeout(t, func() { WaitForCounter(context.Background(), m, second, 0) }, 2*time.Second)

	if got := n.Load(); got != 50 {
		t.Fatalf("second batch completed = %d, want 50", got)
	}

	close(gate)
	waitWithTimeout(t, func() { WaitForCounter(context.Background(), m, outer, 0) }, 2*time.Second)
}

// TestShutdown_IdleWorkers is scenario S5: no work submitted, Destroy
// returns within bounded time.
func TestShutdown_IdleWorkers(t *testing.T) {
	m := Create(4, 16, 32, 0, None)

	done := make(chan struct{})
	go func() {
		Destroy(m)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Destroy did not return for an idle manager within 2s")
	}
}

// TestShutdown_PendingTasksCompletedFirst is scenario S6: 100 tasks are
// submitted, awaited via an external barrier, and only then is Destroy
// called.
func TestShutdown_PendingTasksCompletedFirst(t *testing.T) {
	m := Create(4, 16, 64, 0, None)

	var n atomic.Int64
	tasks := make([]Task, 100)
	for i := range tasks {
		tasks[i] = func(context.Context) { n.Add(1) }
	}
	c := RunJobs(m, tasks)
	waitWithTimeout(t, func() { WaitForCounter(context.Background(), m, c, 0) }, 2*time.Second)

	if got := n.Load(); got != 100 {
		t.Fatalf("completed tasks = %d, want 100", got)
	}

	done := make(chan struct{})
	go func() {
		Destroy(m)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Destroy did not return after pending work completed")
	}
}

// TestRunJobs_NoSteadyStateAllocation is scenario/property 6: after Create
// returns, a RunJobs+WaitForCounter cycle performs zero heap allocations.
// A single worker and single fiber guarantee every cycle reuses the exact
// same fiber and the exact same counter slot, so testing.AllocsPerRun's
// built-in warm-up run is enough to prime the per-fiber cached context
// (fiber.Handle.SetUserContext) and the per-counter waiter/channel
// (Manager.waiterSlots/doneChannels) before allocations are counted.
func TestRunJobs_NoSteadyStateAllocation(t *testing.T) {
	m := Create(1, 1, 1, 0, None)
	defer Destroy(m)

	task := []Task{func(context.Context) {}}

	allocs := testing.AllocsPerRun(200, func() {
		c := RunJobs(m, task)
		WaitForCounter(context.Background(), m, c, 0)
	})
	if allocs != 0 {
		t.Fatalf("RunJobs+WaitForCounter allocated %.2f allocs/run after warm-up, want 0", allocs)
	}
}

// TestCreate_PanicsOnInvalidSizing verifies spec §7's sizing-error
// contract for Create.
func TestCreate_PanicsOnInvalidSizing(t *testing.T) {
	cases := []struct {
		name                                         string
		workers, fibers, tasksPerWorker, fiberStack int
	}{
		{"zero workers", 0, 4, 8, 0},
		{"zero tasksPerWorker", 2, 4, 0, 0},
		{"fewer fibers than workers", 4, 2, 8, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("Create(%d, %d, %d, ...) did not panic", tc.workers, tc.fibers, tc.tasksPerWorker)
				}
			}()
			Create(tc.workers, tc.fibers, tc.tasksPerWorker, tc.fiberStack, None)
		})
	}
}

// TestRunJobs_PanicsOnFullQueue verifies spec §7's capacity-exhaustion
// contract for a worker task queue. Two workers give two counters, so the
// second RunJobs gets a counter and overflows worker 0's single slot
// (tasks 0 and 2 both go to worker 0) instead of exhausting the counter
// pool.
func TestRunJobs_PanicsOnFullQueue(t *testing.T) {
	m := Create(2, 4, 1, 0, None) // queue capacity rounds to 1 per worker
	defer Destroy(m)

	blocker := make(chan struct{})
	RunJobs(m, []Task{func(context.Context) { <-blocker }}) // keeps worker 0 busy

	defer func() {
		close(blocker)
		if recover() == nil {
			t.Fatalf("RunJobs did not panic on a full worker queue")
		}
	}()
	RunJobs(m, []Task{
		func(context.Context) {},
		func(context.Context) {},
		func(context.Context) {},
	})
}

// waitWithTimeout runs fn in a goroutine and fails the test if it does not
// complete within d; used throughout for WaitForCounter calls that should
// never genuinely hang.
func waitWithTimeout(t *testing.T, fn func(), d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("operation did not complete within %s", d)
	}
}
