package fibersched

import (
	"fmt"
	"runtime"

	"github.com/quill-systems/fibersched/internal/mpmc"
)

// spinRetryLimit bounds the retry loop mustPush/mustPop use against the
// shared freelists (openFibers, waitingFibers, openCounters). Under
// correct sizing these never actually run out of room; the loop only
// covers the transient case where a concurrent pusher's CAS is mid-flight,
// not genuine exhaustion.
const spinRetryLimit = 100000

// mustPush pushes onto q, retrying through transient contention, and
// panics if capacity is genuinely exhausted — spec §7 treats that as a
// programmer sizing error, not a recoverable one.
func mustPush[T any](q *mpmc.Queue[T], v T, what string) {
	for i := 0; i < spinRetryLimit; i++ {
		if q.TryPush(v) {
			return
		}
		runtime.Gosched()
	}
	panic(fmt.Sprintf("fibersched: %s pool exhausted", what))
}

// mustPop pops from q, retrying through transient contention, and panics
// if the pop never succeeds — under correct sizing this indicates a
// scheduler invariant was violated, not ordinary emptiness.
func mustPop[T any](q *mpmc.Queue[T], what string) T {
	for i := 0; i < spinRetryLimit; i++ {
		if v, ok := q.TryPop(); ok {
			return v
		}
		runtime.Gosched()
	}
	panic(fmt.Sprintf("fibersched: %s unexpectedly empty", what))
}
