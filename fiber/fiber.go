// Package fiber defines the external fiber-provider collaborator the
// scheduler depends on (spec §6): Create, Destroy, InitForThread and
// SwitchToFiber. Spec §1 puts the real primitive — stack allocation, the
// context-switch instruction sequence — out of scope as "platform ASM
// ... not the interesting design". Go has no user-space stackful-coroutine
// instruction without assembly or cgo, so Handle provides it instead the
// way atmonostorm-derecho's fiber.go does: a dedicated goroutine and a
// rendezvous channel give a goroutine the same "stopped here, resumed
// there" semantics a real fiber switch has, at the cost of a channel
// handoff instead of a register/stack swap.
//
// The spec's "first machine word of the stack holds a self-pointer, used
// by the task loop to discover its own identity" and its worker-index TLS
// discipline are both replaced by the redesign spec §9 prefers: the
// worker index travels as an explicit argument to SwitchToFiber and is
// read back via WorkerIndex, with no thread-local storage involved.
package fiber

import (
	"context"
	"sync"
)

// Entry is called the first time a Handle is switched to. userData is
// passed through unchanged from Create.
type Entry func(h *Handle, userData any)

// Handle is an opaque fiber handle. A Handle created by Create is backed
// by a dedicated goroutine; a Handle created by InitForThread represents
// the calling goroutine itself becoming a fiber.
type Handle struct {
	wake        chan struct{}
	done        chan struct{}
	shutdownC   chan struct{}
	shutdownOne sync.Once
	workerIndex int
	userContext context.Context
}

// Create allocates a fiber that will run entry(h, userData) the first
// time it is switched to. stackSize is accepted for interface parity with
// the spec's external collaborator but unused: goroutine stacks grow on
// demand and are never pre-sized.
//
// A fiber that is never switched to before Destroy is called (it sat on
// openFibers the whole run) never executes entry; Destroy still returns
// promptly, because Destroy races the initial wake against a dedicated
// shutdown signal.
func Create(stackSize int, entry Entry, userData any) *Handle {
	h := &Handle{
		wake:      make(chan struct{}),
		done:      make(chan struct{}),
		shutdownC: make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		select {
		case <-h.wake:
			entry(h, userData)
		case <-h.shutdownC:
		}
	}()
	return h
}

// Destroy releases a fiber created by Create. If the fiber was dispatched
// at least once, Destroy blocks until its entry function returns (which
// happens once the fiber's own scheduling loop observes shutdown and
// calls SwitchAndExit); if the fiber was never dispatched, Destroy wakes
// it immediately via the shutdown signal.
func Destroy(h *Handle) {
	h.shutdownOne.Do(func() { close(h.shutdownC) })
	<-h.done
}

// InitForThread converts the calling goroutine into a fiber, returning
// the handle the worker loop switches away from and back to. It must be
// called once per worker, from the goroutine that will act as that
// worker's OS thread.
func InitForThread() *Handle {
	return &Handle{wake: make(chan struct{})}
}

// SwitchToFiber transfers control from the calling fiber (from) to to,
// stamping to with workerIndex under the happens-before edge of the
// channel send so the resumed fiber observes the correct worker index
// with no thread-local storage involved. The call blocks until either some
// other switch resumes from, or from's own shutdown signal fires while it
// sits parked — this is the general, symmetric switch used for every
// transfer except the final one a retiring fiber makes at shutdown.
//
// The return value is true if from was resumed the normal way and false if
// Destroy(from) fired instead: a caller that parked self here to sit on a
// freelist, with nothing else that will ever reclaim it, must treat false
// as a signal to retire immediately rather than continue as if resumed.
// from.shutdownC is nil for a thread fiber returned by InitForThread, so
// that case of this select never fires and the return value is always
// true, matching the pre-shutdown-aware behavior for worker thread fibers.
func SwitchToFiber(from, to *Handle, workerIndex int) bool {
	to.workerIndex = workerIndex
	to.wake <- struct{}{}
	select {
	case <-from.wake:
		return true
	case <-from.shutdownC:
		return false
	}
}

// SwitchAndExit wakes to (handing control back to it, e.g. a worker's
// thread fiber at shutdown) without blocking on being switched back to
// itself. It must only be called immediately before the calling fiber's
// entry function returns — the one-way counterpart to SwitchToFiber used
// when a fiber is retiring for good rather than yielding.
func (h *Handle) SwitchAndExit(to *Handle, workerIndex int) {
	to.workerIndex = workerIndex
	to.wake <- struct{}{}
}

// WorkerIndex returns the worker index most recently stamped onto this
// fiber by a SwitchToFiber/SwitchAndExit call that resumed it.
func (h *Handle) WorkerIndex() int {
	return h.workerIndex
}

// UserContext returns the context.Context previously cached on this
// handle with SetUserContext, or nil if none has been set yet.
func (h *Handle) UserContext() context.Context {
	return h.userContext
}

// SetUserContext caches a context.Context on this handle so a caller that
// rebuilds the same wrapped context on every dispatch (e.g. one that
// attaches this handle's own identity to it) can build it once and reuse
// it for the fiber's whole lifetime instead of allocating on every
// dispatch. Only the fiber's own currently-executing goroutine may call
// this — Handle has no synchronization protecting the field otherwise.
func (h *Handle) SetUserContext(ctx context.Context) {
	h.userContext = ctx
}

// Provider is the external fiber-provider collaborator spec §6 names:
// Create, Destroy, InitForThread and SwitchToFiber, behind an interface so
// a Manager can be built against a test double the same way domain code
// in the teacher depends on an injectable ThreadPool rather than a
// concrete implementation.
type Provider interface {
	Create(stackSize int, entry Entry, userData any) *Handle
	Destroy(h *Handle)
	InitForThread() *Handle
	SwitchToFiber(from, to *Handle, workerIndex int) bool
}

type defaultProvider struct{}

func (defaultProvider) Create(stackSize int, entry Entry, userData any) *Handle {
	return Create(stackSize, entry, userData)
}
func (defaultProvider) Destroy(h *Handle) { Destroy(h) }
func (defaultProvider) InitForThread() *Handle {
	return InitForThread()
}
func (defaultProvider) SwitchToFiber(from, to *Handle, workerIndex int) bool {
	return SwitchToFiber(from, to, workerIndex)
}

// DefaultProvider is the goroutine-backed Provider used by a Manager
// unless overridden via an Option.
var DefaultProvider Provider = defaultProvider{}
