package broker

import (
	"github.com/bossjones/gearman-server/internal/protocol"
	"github.com/bossjones/gearman-server/internal/queueadapter"
)

func dedupKeyFor(function, unique string, data []byte) (key string, dedup bool) {
	switch {
	case unique == "":
		return "", false
	case unique == "-" && len(data) > 0:
		return "D\x00" + function + "\x00" + string(data), true
	default:
		return "U\x00" + function + "\x00" + unique, true
	}
}

// JobAdd implements job_add (§4.2): locate-or-create the function,
// dedup against an existing job by unique (or by data, for unique
// "-"), and otherwise allocate and enqueue a fresh job. existed reports
// whether an existing job was reused (the JOB_EXISTS outcome); client,
// if non-nil, is registered as a foreground listener either way.
func (b *Broker) JobAdd(functionName, unique string, data []byte, priority protocol.Priority, client *ClientSession) (job *Job, existed bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fn := b.getOrCreateFunctionLocked(functionName)

	key, dedup := dedupKeyFor(functionName, unique, data)
	if dedup {
		if existing, ok := b.byUnique.Get(key); ok {
			if client != nil {
				b.attachClientLocked(existing, client)
			}
			return existing, true, nil
		}
	}

	if fn.MaxQueueSize > 0 && fn.JobTotal >= fn.MaxQueueSize {
		return nil, false, ErrJobQueueFull
	}

	job = &Job{
		Handle:   b.nextHandleLocked(),
		Unique:   unique,
		Function: fn,
		Priority: priority,
		Data:     data,
		dedupKey: key,
	}

	b.byHandle.Put(job.Handle, job)
	if dedup {
		b.byUnique.Put(key, job)
	}
	fn.JobTotal++

	if client != nil {
		b.attachClientLocked(job, client)
	}

	switch {
	case b.replaying:
		job.Queued = true
	case client == nil && b.adapter != nil:
		rec := queueadapter.Record{Unique: unique, Function: functionName, Data: data, Priority: priority}
		if err = b.adapter.Add(rec); err != nil {
			b.destroyJobLocked(job)
			return nil, false, err
		}
		if err = b.adapter.Flush(); err != nil {
			_ = b.adapter.Done(unique, functionName)
			b.destroyJobLocked(job)
			return nil, false, err
		}
		job.Queued = true
	}

	b.enqueueLocked(job)
	return job, false, nil
}

// attachClientLocked registers c as a foreground listener of job,
// unless it already is one.
func (b *Broker) attachClientLocked(job *Job, c *ClientSession) {
	if job.HasClient(c) {
		return
	}
	job.Clients = append(job.Clients, c)
	c.jobs[job.Handle] = job
}

// destroyJobLocked removes job from both hash tables, decrements its
// function's total, and prunes it from every registered client's
// foreground set -- the reverse of attachClientLocked, so a
// long-lived client session doesn't accumulate a c.jobs entry per
// completed job. Doesn't touch the priority list (callers that
// haven't enqueued yet, or that already removed it, use this directly).
func (b *Broker) destroyJobLocked(job *Job) {
	b.byHandle.Delete(job.Handle)
	if job.dedupKey != "" {
		b.byUnique.Delete(job.dedupKey)
	}
	job.Function.JobTotal--
	for _, c := range job.Clients {
		c.forgetJob(job.Handle)
	}
	job.Clients = nil
}

// enqueueLocked appends job to its function's priority list and wakes
// every capable worker that doesn't already have a NOOP pending.
func (b *Broker) enqueueLocked(job *Job) {
	fn := job.Function
	fn.jobLists[job.Priority].PushBack(job.Handle, job)
	b.wakeCapableLocked(fn)
}

func (b *Broker) wakeCapableLocked(fn *Function) {
	for _, ws := range fn.workers.Values() {
		if !ws.NoopQueued {
			ws.NoopQueued = true
			if ws.Notify != nil {
				ws.Notify()
			}
		}
	}
}

// RegisterWorker declares ws capable of fn, creating fn if needed, and
// appends ws to its capable-worker list in declaration order.
func (b *Broker) RegisterWorker(fn string, ws *WorkerSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.getOrCreateFunctionLocked(fn)
	if _, ok := f.workers.Get(ws.ID); ok {
		return // re-declaration keeps the original position
	}
	f.workers.PushBack(ws.ID, ws)
}

// UnregisterWorker withdraws ws's capability for fn.
func (b *Broker) UnregisterWorker(fn string, ws *WorkerSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if f, ok := b.functions[fn]; ok {
		f.workers.Remove(ws.ID)
	}
}

// GrabJob implements peek+take (§4.3): walk ws's declared functions in
// declaration order, scanning HIGH->LOW within each, and assign the
// first eligible job. Jobs found IGNOREd are reaped in place and the
// scan continues. Returns (nil, false) if nothing is eligible.
func (b *Broker) GrabJob(ws *WorkerSession) (*Job, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, name := range ws.abilityOrder {
		fn, ok := b.functions[name]
		if !ok {
			continue
		}
		for p := 0; p < protocol.NumPriorities; p++ {
			list := fn.jobLists[p]
			for {
				head, ok := list.Front()
				if !ok {
					break
				}
				if head.Ignore {
					list.Remove(head.Handle)
					b.destroyJobLocked(head)
					if head.Queued && b.adapter != nil {
						_ = b.adapter.Done(head.Unique, fn.Name)
					}
					continue
				}
				list.Remove(head.Handle)
				head.Worker = ws
				fn.JobRunning++
				ws.Assigned = head
				ws.Sleeping = false
				ws.NoopQueued = false
				return head, true
			}
		}
	}
	return nil, false
}

// Requeue returns job to the head of its original priority list,
// clears its worker assignment, and re-wakes capable workers. Used for
// a retried WORK_FAIL and for a worker connection lost while assigned.
func (b *Broker) Requeue(job *Job) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requeueLocked(job)
}

func (b *Broker) requeueLocked(job *Job) {
	fn := job.Function
	if job.Worker != nil {
		fn.JobRunning--
	}
	job.Worker = nil
	fn.jobLists[job.Priority].PushFront(job.Handle, job)
	b.wakeCapableLocked(fn)
}

// WorkFailed applies retry policy (§9/SPEC_FULL's job_retries plumbing)
// to a WORK_FAIL: below the configured retry budget the job is
// re-queued and retained=true; at or above it, the job is terminal and
// the caller should call Complete.
func (b *Broker) WorkFailed(job *Job) (retained bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	job.Attempts++
	if job.Attempts <= b.jobRetries {
		b.requeueLocked(job)
		return true
	}
	return false
}

// Complete terminates job (WORK_COMPLETE or a terminal WORK_FAIL):
// invokes queue_done if QUEUED, removes it from both hash tables, and
// decrements its function's counters. The job must not still be on a
// priority list (it is running, assigned to a worker) when this is
// called from normal completion; IGNORE-reaping uses destroyJobLocked
// directly instead.
func (b *Broker) Complete(job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fn := job.Function
	if job.Worker != nil {
		fn.JobRunning--
		job.Worker = nil
	}

	var doneErr error
	if job.Queued && b.adapter != nil {
		doneErr = b.adapter.Done(job.Unique, fn.Name)
	}
	b.destroyJobLocked(job)
	return doneErr
}

// DetachClient handles client disconnect (§5 Cancellation): the client
// is removed from the listener list of every job it registered for, and
// a job left with no registered client is IGNORE-marked if still queued
// (a running one is left to its worker; the result is discarded at
// completion).
func (b *Broker) DetachClient(c *ClientSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, job := range c.jobs {
		job.removeClient(c)
		if job.Worker == nil && len(job.Clients) == 0 {
			job.Ignore = true
		}
	}
	c.jobs = make(map[string]*Job)
}

// WorkerDisconnected handles a worker connection loss (§5): its
// in-flight assignment, if any, is re-queued, and it is withdrawn from
// every function's capable-worker list.
func (b *Broker) WorkerDisconnected(ws *WorkerSession) {
	b.mu.Lock()
	assigned := ws.Assigned
	ws.Assigned = nil
	if assigned != nil && assigned.Worker != ws {
		// Already completed, or re-queued by WORK_FAIL: not in flight here.
		assigned = nil
	}
	for _, name := range ws.abilityOrder {
		if fn, ok := b.functions[name]; ok {
			fn.workers.Remove(ws.ID)
		}
	}
	b.mu.Unlock()

	if assigned != nil {
		b.Requeue(assigned)
	}
}

// JobByHandle looks up a live job by its handle.
func (b *Broker) JobByHandle(handle string) (*Job, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.byHandle.Get(handle)
}

// GetStatus reports whether handle is known, whether it is currently
// running, and its last reported progress (§4.1 GET_STATUS).
func (b *Broker) GetStatus(handle string) (known, running bool, numerator, denominator int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	job, ok := b.byHandle.Get(handle)
	if !ok {
		return false, false, 0, 0
	}
	return true, job.Worker != nil, job.Numerator, job.Denominator
}

// SetProgress records a WORK_STATUS update.
func (b *Broker) SetProgress(job *Job, numerator, denominator int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	job.Numerator = numerator
	job.Denominator = denominator
}
