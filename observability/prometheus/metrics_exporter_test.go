package prometheus

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("fibersched", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskDuration(0, 250*time.Millisecond)
	exporter.RecordTaskPanic(0)
	exporter.RecordQueueDepth(0, 7)
	exporter.RecordWorkerParked(0)
	exporter.RecordFiberPoolLowWater(3)

	panicTotal := testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("0"))
	if panicTotal != 1 {
		t.Fatalf("panic total = %v, want 1", panicTotal)
	}

	queueDepth := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("0"))
	if queueDepth != 7 {
		t.Fatalf("queue depth = %v, want 7", queueDepth)
	}

	parkedTotal := testutil.ToFloat64(exporter.workerParkedTotal.WithLabelValues("0"))
	if parkedTotal != 1 {
		t.Fatalf("worker parked total = %v, want 1", parkedTotal)
	}

	lowWater := testutil.ToFloat64(exporter.fiberPoolLowWater)
	if lowWater != 3 {
		t.Fatalf("fiber pool low water = %v, want 3", lowWater)
	}

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("0"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("fibersched", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("fibersched", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskPanic(1)
	second.RecordTaskPanic(1)

	got := testutil.ToFloat64(first.taskPanicTotal.WithLabelValues("1"))
	if got != 2 {
		t.Fatalf("shared panic counter = %v, want 2", got)
	}
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
