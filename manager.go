package fibersched

import (
	"sync"
	"sync/atomic"

	"github.com/quill-systems/fibersched/fiber"
	"github.com/quill-systems/fibersched/internal/mpmc"
	"github.com/quill-systems/fibersched/internal/parkmutex"
)

// Manager owns every resource the scheduler needs: worker goroutines,
// fibers, per-worker task queues, parking mutexes, and the counter pool.
// Per spec §3 it exclusively owns all of that until Destroy; after Destroy
// every handle it produced is invalid.
type Manager struct {
	numWorkers     int
	fiberStackSize int
	flags          Flags
	logger         Logger
	metrics        Metrics
	panicHandler   PanicHandler
	provider       fiber.Provider

	workerQueues []*mpmc.Queue[QueuedTask]
	workerLocks  []*parkmutex.Mutex
	threadFibers []atomic.Pointer[fiber.Handle]

	fibers        []*fiber.Handle
	openFibers    *mpmc.Queue[*fiber.Handle]
	waitingFibers *mpmc.Queue[*fiber.Handle]

	counters     []Counter
	openCounters *mpmc.Queue[uint32]
	// waiterSlots and doneChannels hold one entry per counter slot,
	// indexed the same way as counters, so WaitForCounter never allocates
	// a fresh parkedWaiter or channel per call.
	waiterSlots  []parkedWaiter
	doneChannels []chan struct{}

	shutdown atomic.Bool
	wg       sync.WaitGroup

	tasksSubmitted atomic.Uint64
	tasksCompleted atomic.Uint64
}

// Create allocates a Manager sized for numWorkers OS-thread-backed workers,
// numFibers cooperatively-scheduled fibers, and numTasksPerWorker slots in
// each worker's private task queue. fiberStackSize is forwarded to the
// fiber provider's Create call (the default, goroutine-backed provider
// ignores it — see the fiber package). Every allocation Create performs is
// up front: RunJobs/WaitForCounter cycles afterward perform none, per
// spec §5, apart from the one context each fiber builds and caches on the
// first task it runs.
//
// Sizing errors (numWorkers or numTasksPerWorker ≤ 0, or fewer fibers than
// workers; fiberStackSize is not checked) panic
// immediately, the same way the teacher panics on an invalid
// maxConcurrency rather than returning an error for what is a programmer
// mistake, not a runtime condition.
func Create(numWorkers, numFibers, numTasksPerWorker, fiberStackSize int, flags Flags, opts ...Option) *Manager {
	if numWorkers <= 0 {
		panic("fibersched: numWorkers must be positive")
	}
	if numTasksPerWorker <= 0 {
		panic("fibersched: numTasksPerWorker must be positive")
	}
	if numFibers < numWorkers {
		panic("fibersched: numFibers must be at least numWorkers")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	// The default panic handler logs through whichever Logger was configured.
	if h, ok := cfg.panicHandler.(DefaultPanicHandler); ok && h.Logger == (NoOpLogger{}) {
		cfg.panicHandler = DefaultPanicHandler{Logger: cfg.logger}
	}

	m := &Manager{
		numWorkers:     numWorkers,
		fiberStackSize: fiberStackSize,
		flags:          flags,
		logger:         cfg.logger,
		metrics:        cfg.metrics,
		panicHandler:   cfg.panicHandler,
		provider:       cfg.provider,
		threadFibers:   make([]atomic.Pointer[fiber.Handle], numWorkers),
	}

	m.workerQueues = make([]*mpmc.Queue[QueuedTask], numWorkers)
	m.workerLocks = make([]*parkmutex.Mutex, numWorkers)
	for i := 0; i < numWorkers; i++ {
		m.workerQueues[i] = mpmc.New[QueuedTask](numTasksPerWorker)
		m.workerLocks[i] = parkmutex.New(true) // workers block on first entry
	}

	numCounters := numWorkers * numTasksPerWorker
	m.counters = make([]Counter, numCounters)
	m.openCounters = mpmc.New[uint32](numCounters)
	m.waiterSlots = make([]parkedWaiter, numCounters)
	m.doneChannels = make([]chan struct{}, numCounters)
	for i := range m.counters {
		m.counters[i].index = uint32(i)
		m.doneChannels[i] = make(chan struct{}, 1)
		if !m.openCounters.TryPush(uint32(i)) {
			panic("fibersched: openCounters overflowed during Create")
		}
	}

	m.openFibers = mpmc.New[*fiber.Handle](numFibers)
	m.waitingFibers = mpmc.New[*fiber.Handle](numFibers)
	m.fibers = make([]*fiber.Handle, numFibers)
	for i := 0; i < numFibers; i++ {
		h := m.provider.Create(fiberStackSize, m.fiberEntry, m)
		m.fibers[i] = h
		// Per spec §9's open question, freshly created fibers are pushed
		// onto openFibers, not onto openCounters.
		if !m.openFibers.TryPush(h) {
			panic("fibersched: openFibers overflowed during Create")
		}
	}

	m.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go m.workerLoop(i)
	}

	return m
}

// Destroy sets the shutdown flag, releases every parked worker, joins each
// worker goroutine, and destroys every fiber. After Destroy returns, m
// must not be used again.
func Destroy(m *Manager) {
	m.shutdown.Store(true)
	for i := 0; i < m.numWorkers; i++ {
		m.workerLocks[i].TryLock()
		m.workerLocks[i].Unlock()
	}
	m.wg.Wait()

	for _, h := range m.fibers {
		m.provider.Destroy(h)
	}
}

// Stats returns a point-in-time snapshot of pool occupancy, in the shape
// of the teacher's RunnerStats/PoolStats observability structs.
func (m *Manager) Stats() ManagerStats {
	return ManagerStats{
		Workers:        m.numWorkers,
		Fibers:         len(m.fibers),
		OpenFibers:     m.openFibers.ApproxSize(),
		WaitingFibers:  m.waitingFibers.ApproxSize(),
		OpenCounters:   m.openCounters.ApproxSize(),
		TasksSubmitted: m.tasksSubmitted.Load(),
		TasksCompleted: m.tasksCompleted.Load(),
	}
}

func (m *Manager) popOpenFiber() *fiber.Handle {
	h := mustPop(m.openFibers, "openFibers")
	m.metrics.RecordFiberPoolLowWater(m.openFibers.ApproxSize())
	return h
}
