package broker

import "github.com/bossjones/gearman-server/internal/protocol"

// Function is a named capability workers declare and clients target. It
// is created lazily on first reference and lives until an explicit
// DropFunction call removes it (only permitted once no worker declares
// it).
type Function struct {
	Name         string
	MaxQueueSize int

	// JobTotal counts every job in existence for this function
	// regardless of state; JobRunning counts only those with a worker
	// assigned.
	JobTotal   int
	JobRunning int

	jobLists [protocol.NumPriorities]*HandleList[*Job]
	workers  *HandleList[*WorkerSession]
}

func newFunction(name string) *Function {
	f := &Function{Name: name, workers: NewHandleList[*WorkerSession]()}
	for p := 0; p < protocol.NumPriorities; p++ {
		f.jobLists[p] = NewHandleList[*Job]()
	}
	return f
}

// JobCount returns the length of the priority-p queue list.
func (f *Function) JobCount(p protocol.Priority) int {
	return f.jobLists[p].Len()
}

// WorkerCount returns the number of worker sessions currently declared
// capable of this function.
func (f *Function) WorkerCount() int {
	return f.workers.Len()
}

// idle reports whether the function has no declared capable workers,
// the precondition for DropFunction.
func (f *Function) idle() bool {
	return f.workers.Len() == 0
}
