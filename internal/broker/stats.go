package broker

import "github.com/bossjones/gearman-server/internal/protocol"

// FunctionStat is a point-in-time snapshot of one function's counters,
// the shape both the TEXT "status" admin command and the Prometheus
// exporter consume. It mirrors the source's FuncStat{Worker,Job,Processing}
// triple.
type FunctionStat struct {
	Name       string
	Worker     int
	Queued     int // JobTotal - JobRunning, i.e. still on a priority list
	Running    int
	Total      int
	MaxQueue   int
	PerPriority [protocol.NumPriorities]int
}

// Snapshot returns a stats row for every known function, sorted by name.
func (b *Broker) Snapshot() []FunctionStat {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]FunctionStat, 0, len(b.functions))
	for _, name := range b.sortedFunctionNamesLocked() {
		fn := b.functions[name]
		stat := FunctionStat{
			Name:     fn.Name,
			Worker:   fn.WorkerCount(),
			Running:  fn.JobRunning,
			Total:    fn.JobTotal,
			MaxQueue: fn.MaxQueueSize,
		}
		for p := 0; p < protocol.NumPriorities; p++ {
			stat.PerPriority[p] = fn.JobCount(protocol.Priority(p))
		}
		stat.Queued = fn.JobTotal - fn.JobRunning
		out = append(out, stat)
	}
	return out
}

func (b *Broker) sortedFunctionNamesLocked() []string {
	names := make([]string, 0, len(b.functions))
	for name := range b.functions {
		names = append(names, name)
	}
	// Simple insertion sort: function counts are small and this keeps
	// admin/status output deterministic without pulling in sort for a
	// handful of entries at a time.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return names
}
