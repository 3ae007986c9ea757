package fibersched

import (
	"fmt"
	"time"
)

// PanicHandler is invoked when a submitted task panics. Per spec §7, a
// task panic is not a recoverable condition for the scheduler itself: the
// default handler logs and then re-panics, so a task's failure still
// escapes as a process-level abort, but callers that want to survive a
// single misbehaving task (at the cost of violating that guarantee) can
// install a handler that doesn't.
type PanicHandler interface {
	HandlePanic(workerIndex int, panicValue any, stack []byte)
}

// DefaultPanicHandler logs the panic via the Manager's Logger and then
// re-panics, preserving process-level abort semantics.
type DefaultPanicHandler struct {
	Logger Logger
}

func (h DefaultPanicHandler) HandlePanic(workerIndex int, panicValue any, stack []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NoOpLogger{}
	}
	logger.Error("task panicked",
		F("worker_index", workerIndex),
		F("panic", fmt.Sprintf("%v", panicValue)),
		F("stack", string(stack)),
	)
	panic(panicValue)
}

// Metrics receives scheduler observability events. Every method must
// return quickly and never block: it is called from the worker/fiber hot
// path. NilMetrics is the default and discards everything.
type Metrics interface {
	RecordTaskDuration(workerIndex int, d time.Duration)
	RecordTaskPanic(workerIndex int)
	RecordQueueDepth(workerIndex int, depth int)
	RecordWorkerParked(workerIndex int)
	RecordFiberPoolLowWater(openFibers int)
}

// NilMetrics discards every event. It is the default Metrics
// implementation for a Manager that does not configure one.
type NilMetrics struct{}

func (NilMetrics) RecordTaskDuration(int, time.Duration) {}
func (NilMetrics) RecordTaskPanic(int)                   {}
func (NilMetrics) RecordQueueDepth(int, int)             {}
func (NilMetrics) RecordWorkerParked(int)                {}
func (NilMetrics) RecordFiberPoolLowWater(int)           {}
