package broker

import "github.com/bossjones/gearman-server/internal/protocol"

// Job is the unit of work. It lives in exactly one of three states:
// queued (Worker == nil, sitting on its function's priority list),
// running (Worker != nil), or logically deleted but not yet reaped
// (Ignore set, still findable by handle/unique until the next peek).
type Job struct {
	Handle   string
	Unique   string
	Function *Function
	Priority protocol.Priority
	Data     []byte

	Numerator   int
	Denominator int

	Clients []*ClientSession
	Worker  *WorkerSession

	// Queued records whether the persistent queue adapter's Add was
	// invoked for this job (set without a call during replay).
	Queued bool

	// Ignore marks a job whose only registered foreground client
	// disconnected before it reached a worker; it is reaped the next
	// time it is peeked off its priority list.
	Ignore bool

	// Attempts counts WORK_FAIL occurrences, consulted against
	// Config.JobRetries before a re-queue is allowed.
	Attempts int

	// dedupKey is the key this job is stored under in the broker's
	// unique-dedup table, or "" if it was submitted without one.
	dedupKey string
}

// HasClient reports whether c is already registered on this job.
func (j *Job) HasClient(c *ClientSession) bool {
	for _, existing := range j.Clients {
		if existing == c {
			return true
		}
	}
	return false
}

func (j *Job) removeClient(c *ClientSession) {
	for i, existing := range j.Clients {
		if existing == c {
			j.Clients = append(j.Clients[:i], j.Clients[i+1:]...)
			return
		}
	}
}
