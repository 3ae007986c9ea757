// Package prometheus adapts fibersched's observability interfaces
// (Metrics and a Manager's Stats) to Prometheus collectors.
package prometheus

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/quill-systems/fibersched"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts fibersched.Metrics to Prometheus collectors. Pass
// one to fibersched.WithMetrics.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskPanicTotal      *prom.CounterVec
	queueDepth          *prom.GaugeVec
	workerParkedTotal   *prom.CounterVec
	fiberPoolLowWater   prom.Gauge
}

var _ fibersched.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for
// fibersched.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "fibersched"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"worker"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics.",
	}, []string{"worker"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current per-worker task queue depth.",
	}, []string{"worker"})
	workerParkedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "worker_parked_total",
		Help:      "Total number of times a worker parked with no ready work.",
	}, []string{"worker"})
	fiberPoolLowWater := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "fiber_pool_open_fibers",
		Help:      "Open-fiber freelist size observed on the most recent dispatch.",
	})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if workerParkedVec, err = registerCollector(reg, workerParkedVec); err != nil {
		return nil, err
	}
	if fiberPoolLowWater, err = registerCollector(reg, fiberPoolLowWater); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskPanicTotal:      panicVec,
		queueDepth:          queueDepthVec,
		workerParkedTotal:   workerParkedVec,
		fiberPoolLowWater:   fiberPoolLowWater,
	}, nil
}

func (m *MetricsExporter) RecordTaskDuration(workerIndex int, d time.Duration) {
	m.taskDurationSeconds.WithLabelValues(workerLabel(workerIndex)).Observe(d.Seconds())
}

func (m *MetricsExporter) RecordTaskPanic(workerIndex int) {
	m.taskPanicTotal.WithLabelValues(workerLabel(workerIndex)).Inc()
}

func (m *MetricsExporter) RecordQueueDepth(workerIndex int, depth int) {
	m.queueDepth.WithLabelValues(workerLabel(workerIndex)).Set(float64(depth))
}

func (m *MetricsExporter) RecordWorkerParked(workerIndex int) {
	m.workerParkedTotal.WithLabelValues(workerLabel(workerIndex)).Inc()
}

func (m *MetricsExporter) RecordFiberPoolLowWater(openFibers int) {
	m.fiberPoolLowWater.Set(float64(openFibers))
}

func workerLabel(workerIndex int) string {
	return fmt.Sprintf("%d", workerIndex)
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
