package fibersched

import (
	"context"

	"github.com/quill-systems/fibersched/fiber"
)

// Task is a unit of work submitted via RunJobs. Per spec §3 it takes no
// return value and must not itself fail; its ctx is not a cancellation
// signal (there is none, per spec §5) but the vehicle a task uses to make
// nested RunJobs/WaitForCounter calls, the same way the worker index in
// spec §9's preferred redesign travels as an explicit value instead of
// through thread-local state — the teacher's own Task type takes a ctx
// context.Context for the identical reason (core.Task, core.GetCurrentTaskRunner).
type Task func(ctx context.Context)

// QueuedTask pairs a Task with the index of the Counter it decrements on
// completion. The index (rather than a pointer) is what spec §3 specifies:
// it keeps the struct small and ties the reference's lifetime to the
// Manager's counter array instead of to any individual Counter value.
type QueuedTask struct {
	Task         Task
	CounterIndex uint32
}

type fiberContextKey struct{}

type fiberContext struct {
	manager *Manager
	handle  *fiber.Handle
}

// withFiberContext attaches the identity of the fiber currently executing
// a task to ctx, so a nested WaitForCounter call knows it can yield the
// underlying worker to another fiber instead of blocking it outright.
func withFiberContext(ctx context.Context, m *Manager, h *fiber.Handle) context.Context {
	return context.WithValue(ctx, fiberContextKey{}, fiberContext{manager: m, handle: h})
}

func fiberFromContext(ctx context.Context) (*fiber.Handle, bool) {
	fc, ok := ctx.Value(fiberContextKey{}).(fiberContext)
	if !ok {
		return nil, false
	}
	return fc.handle, true
}
