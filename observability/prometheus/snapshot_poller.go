package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/quill-systems/fibersched"
)

// StatsProvider is satisfied by *fibersched.Manager.
type StatsProvider interface {
	Stats() fibersched.ManagerStats
}

// SnapshotPoller periodically exports one or more managers' Stats()
// snapshots into Prometheus gauges, for the pool-occupancy numbers that
// aren't natural to observe from the hot path via Metrics alone (queue
// depth and panic counts are recorded as they happen; fiber/counter
// freelist occupancy is cheaper to sample periodically instead).
type SnapshotPoller struct {
	interval time.Duration

	mu       sync.RWMutex
	managers map[string]StatsProvider

	fibers         *prom.GaugeVec
	openFibers     *prom.GaugeVec
	waitingFibers  *prom.GaugeVec
	openCounters   *prom.GaugeVec
	tasksSubmitted *prom.GaugeVec
	tasksCompleted *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	fibers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fibersched",
		Name:      "fibers",
		Help:      "Total fiber count per manager.",
	}, []string{"manager"})
	openFibers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fibersched",
		Name:      "open_fibers",
		Help:      "Idle fibers available for dispatch per manager.",
	}, []string{"manager"})
	waitingFibers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fibersched",
		Name:      "waiting_fibers",
		Help:      "Fibers resumed by a counter and awaiting redispatch per manager.",
	}, []string{"manager"})
	openCounters := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fibersched",
		Name:      "open_counters",
		Help:      "Free counter-pool slots per manager.",
	}, []string{"manager"})
	tasksSubmitted := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fibersched",
		Name:      "tasks_submitted_total",
		Help:      "Tasks submitted via RunJobs, snapshot at poll time.",
	}, []string{"manager"})
	tasksCompleted := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fibersched",
		Name:      "tasks_completed_total",
		Help:      "Tasks completed (including panicked), snapshot at poll time.",
	}, []string{"manager"})

	var err error
	if fibers, err = registerCollector(reg, fibers); err != nil {
		return nil, err
	}
	if openFibers, err = registerCollector(reg, openFibers); err != nil {
		return nil, err
	}
	if waitingFibers, err = registerCollector(reg, waitingFibers); err != nil {
		return nil, err
	}
	if openCounters, err = registerCollector(reg, openCounters); err != nil {
		return nil, err
	}
	if tasksSubmitted, err = registerCollector(reg, tasksSubmitted); err != nil {
		return nil, err
	}
	if tasksCompleted, err = registerCollector(reg, tasksCompleted); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:       interval,
		managers:       make(map[string]StatsProvider),
		fibers:         fibers,
		openFibers:     openFibers,
		waitingFibers:  waitingFibers,
		openCounters:   openCounters,
		tasksSubmitted: tasksSubmitted,
		tasksCompleted: tasksCompleted,
	}, nil
}

// AddManager adds or replaces a manager snapshot source by name.
func (p *SnapshotPoller) AddManager(name string, m StatsProvider) {
	if p == nil || m == nil {
		return
	}
	name = normalizeLabel(name, "default")
	p.mu.Lock()
	p.managers[name] = m
	p.mu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for name, m := range p.managers {
		stats := m.Stats()
		p.fibers.WithLabelValues(name).Set(float64(stats.Fibers))
		p.openFibers.WithLabelValues(name).Set(float64(stats.OpenFibers))
		p.waitingFibers.WithLabelValues(name).Set(float64(stats.WaitingFibers))
		p.openCounters.WithLabelValues(name).Set(float64(stats.OpenCounters))
		p.tasksSubmitted.WithLabelValues(name).Set(float64(stats.TasksSubmitted))
		p.tasksCompleted.WithLabelValues(name).Set(float64(stats.TasksCompleted))
	}
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
