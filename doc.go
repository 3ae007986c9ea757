// Package fibersched is a fiber-based task scheduler: a fixed pool of
// worker goroutines dispatches queued tasks onto a fixed pool of
// cooperatively-scheduled fibers (see the fiber package), parking and
// resuming fibers as they wait on counters.
//
// Callers submit a batch of tasks with RunJobs, which returns a Counter,
// and block on counter completion with WaitForCounter. A task itself may
// call RunJobs and WaitForCounter again (nested fan-out/fan-in) using the
// context.Context it is handed.
//
// Capacity exhaustion (a full worker queue, an exhausted counter or fiber
// pool) is a programmer sizing error, not a recoverable condition, and is
// reported by panicking rather than by an error return.
package fibersched
