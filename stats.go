package fibersched

// ManagerStats is a point-in-time observability snapshot, in the shape of
// the teacher's RunnerStats/PoolStats: a plain value type safe to read
// without holding any lock, suitable for periodic polling (see
// observability/prometheus.SnapshotPoller).
type ManagerStats struct {
	Workers        int
	Fibers         int
	OpenFibers     int
	WaitingFibers  int
	OpenCounters   int
	TasksSubmitted uint64
	TasksCompleted uint64
}
