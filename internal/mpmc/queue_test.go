package mpmc

import (
	"sync"
	"sync/atomic"
	"testing"
)

// TestQueue_CapacityRoundsUpToPowerOfTwo verifies capacity rounding.
// Given: capacities that are not powers of two
// When: a queue is constructed
// Then: Cap() reports the next power of two
func TestQueue_CapacityRoundsUpToPowerOfTwo(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 4, 5: 8, 17: 32, 1024: 1024}
	for in, want := range cases {
		q := New[int](in)
		if got := q.Cap(); got != want {
			t.Errorf("New(%d).Cap() = %d, want %d", in, got, want)
		}
	}
}

// TestQueue_PushPopFIFOSingleThreaded verifies ordering under no contention.
// Given: a queue fed by a single producer
// When: values are popped by a single consumer
// Then: values come back out in push order
func TestQueue_PushPopFIFOSingleThreaded(t *testing.T) {
	q := New[int](8)

	for i := 0; i < 8; i++ {
		if !q.TryPush(i) {
			t.Fatalf("TryPush(%d) failed unexpectedly", i)
		}
	}

	if q.TryPush(99) {
		t.Fatalf("TryPush succeeded on a full queue")
	}

	for i := 0; i < 8; i++ {
		got, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop() failed at index %d", i)
		}
		if got != i {
			t.Errorf("TryPop() = %d, want %d", got, i)
		}
	}

	if _, ok := q.TryPop(); ok {
		t.Fatalf("TryPop() succeeded on an empty queue")
	}
}

// TestQueue_ConcurrentProducersConsumers verifies exactly-once delivery.
// Given: K producers each pushing a disjoint range of values and K consumers draining concurrently
// When: all producers and consumers finish
// Then: every pushed value was popped exactly once
func TestQueue_ConcurrentProducersConsumers(t *testing.T) {
	const (
		producers     = 8
		perProducer   = 2000
		totalItems    = producers * perProducer
		consumers     = 8
		queueCapacity = 1024
	)

	q := New[int](queueCapacity)
	seen := make([]atomic.Int32, totalItems)

	var producerWG sync.WaitGroup
	for p := 0; p < producers; p++ {
		producerWG.Add(1)
		go func(base int) {
			defer producerWG.Done()
			for i := 0; i < perProducer; i++ {
				v := base + i
				for !q.TryPush(v) {
					// Queue momentarily full; retry. Backpressure is the
					// caller's responsibility per the queue's contract.
				}
			}
		}(p * perProducer)
	}

	popped := atomic.Int32{}
	done := make(chan struct{})
	var consumerWG sync.WaitGroup
	for c := 0; c < consumers; c++ {
		consumerWG.Add(1)
		go func() {
			defer consumerWG.Done()
			for {
				if v, ok := q.TryPop(); ok {
					seen[v].Add(1)
					popped.Add(1)
					continue
				}
				select {
				case <-done:
					if v, ok := q.TryPop(); ok {
						seen[v].Add(1)
						popped.Add(1)
						continue
					}
					return
				default:
				}
			}
		}()
	}

	producerWG.Wait()
	close(done)
	consumerWG.Wait()

	for i := range seen {
		if seen[i].Load() != 1 {
			t.Fatalf("value %d was popped %d times, want exactly 1", i, seen[i].Load())
		}
	}
}

// TestQueue_ApproxSizeTracksPushesAndPops verifies the size heuristic.
// Given: a freshly created queue
// When: elements are pushed and popped
// Then: ApproxSize reflects the outstanding element count
func TestQueue_ApproxSizeTracksPushesAndPops(t *testing.T) {
	q := New[int](16)

	if got := q.ApproxSize(); got != 0 {
		t.Fatalf("ApproxSize() = %d, want 0", got)
	}
	for i := 0; i < 5; i++ {
		q.TryPush(i)
	}
	if got := q.ApproxSize(); got != 5 {
		t.Fatalf("ApproxSize() = %d, want 5", got)
	}
	q.TryPop()
	if got := q.ApproxSize(); got != 4 {
		t.Fatalf("ApproxSize() = %d, want 4", got)
	}
}
