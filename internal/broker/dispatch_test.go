package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bossjones/gearman-server/internal/protocol"
	"github.com/bossjones/gearman-server/internal/queueadapter"
)

func TestJobAddPriorityOrdering(t *testing.T) {
	b := New("T")
	ws := NewWorkerSession("w1", nil)
	ws.CanDo("reverse", 0)
	b.RegisterWorker("reverse", ws)

	_, _, err := b.JobAdd("reverse", "", []byte("low"), protocol.PriorityLow, nil)
	require.NoError(t, err)
	_, _, err = b.JobAdd("reverse", "", []byte("normal"), protocol.PriorityNormal, nil)
	require.NoError(t, err)
	_, _, err = b.JobAdd("reverse", "", []byte("high"), protocol.PriorityHigh, nil)
	require.NoError(t, err)

	job, ok := b.GrabJob(ws)
	require.True(t, ok)
	assert.Equal(t, "high", string(job.Data))
	require.NoError(t, b.Complete(job))

	job, ok = b.GrabJob(ws)
	require.True(t, ok)
	assert.Equal(t, "normal", string(job.Data))
	require.NoError(t, b.Complete(job))

	job, ok = b.GrabJob(ws)
	require.True(t, ok)
	assert.Equal(t, "low", string(job.Data))
}

func TestJobAddUniqueDedup(t *testing.T) {
	b := New("T")

	job1, existed, err := b.JobAdd("reverse", "abc", []byte("first"), protocol.PriorityNormal, nil)
	require.NoError(t, err)
	assert.False(t, existed)

	job2, existed, err := b.JobAdd("reverse", "abc", []byte("second"), protocol.PriorityNormal, nil)
	require.NoError(t, err)
	assert.True(t, existed, "expected dedup reuse by unique")
	assert.Equal(t, job1.Handle, job2.Handle)
}

func TestJobAddDashDedupsByData(t *testing.T) {
	b := New("T")

	job1, _, err := b.JobAdd("reverse", "-", []byte("payload"), protocol.PriorityNormal, nil)
	require.NoError(t, err)

	job2, existed, err := b.JobAdd("reverse", "-", []byte("payload"), protocol.PriorityNormal, nil)
	require.NoError(t, err)
	assert.True(t, existed, "expected dedup by data for unique \"-\"")
	assert.Equal(t, job1.Handle, job2.Handle)

	job3, existed, err := b.JobAdd("reverse", "-", []byte("other"), protocol.PriorityNormal, nil)
	require.NoError(t, err)
	assert.False(t, existed, "different data under \"-\" must not dedup")
	assert.NotEqual(t, job1.Handle, job3.Handle)
}

func TestJobAddMaxQueueSize(t *testing.T) {
	b := New("T")
	b.SetMaxQueueSize("reverse", 1)

	_, _, err := b.JobAdd("reverse", "", []byte("one"), protocol.PriorityNormal, nil)
	require.NoError(t, err)

	_, _, err = b.JobAdd("reverse", "", []byte("two"), protocol.PriorityNormal, nil)
	assert.ErrorIs(t, err, ErrJobQueueFull)
}

func TestDetachClientIgnoresQueuedJob(t *testing.T) {
	b := New("T")
	var sent [][]byte
	c := NewClientSession("c1", func(cmd protocol.Command, args ...[]byte) error {
		sent = args
		return nil
	})

	job, _, err := b.JobAdd("reverse", "", []byte("x"), protocol.PriorityNormal, c)
	require.NoError(t, err)

	b.DetachClient(c)
	assert.True(t, job.Ignore, "expected job to be marked Ignore after its only client detached")

	ws := NewWorkerSession("w1", nil)
	ws.CanDo("reverse", 0)
	b.RegisterWorker("reverse", ws)
	_, ok := b.GrabJob(ws)
	assert.False(t, ok, "GrabJob should reap an Ignore-marked job rather than assign it")
	_ = sent
}

func TestWorkerDisconnectedRequeuesAssignment(t *testing.T) {
	b := New("T")
	ws1 := NewWorkerSession("w1", nil)
	ws1.CanDo("reverse", 0)
	b.RegisterWorker("reverse", ws1)

	_, _, err := b.JobAdd("reverse", "", []byte("x"), protocol.PriorityNormal, nil)
	require.NoError(t, err)

	job, ok := b.GrabJob(ws1)
	require.True(t, ok)

	b.WorkerDisconnected(ws1)

	ws2 := NewWorkerSession("w2", nil)
	ws2.CanDo("reverse", 0)
	b.RegisterWorker("reverse", ws2)

	again, ok := b.GrabJob(ws2)
	require.True(t, ok, "expected requeued job to be grabbable again")
	assert.Equal(t, job.Handle, again.Handle)
}

func TestWorkFailedRetryBudget(t *testing.T) {
	b := New("T", WithJobRetries(1))
	ws := NewWorkerSession("w1", nil)
	ws.CanDo("reverse", 0)
	b.RegisterWorker("reverse", ws)

	_, _, err := b.JobAdd("reverse", "", []byte("x"), protocol.PriorityNormal, nil)
	require.NoError(t, err)
	job, _ := b.GrabJob(ws)

	assert.True(t, b.WorkFailed(job), "first WORK_FAIL should be retained under retry budget 1")

	job, ok := b.GrabJob(ws)
	require.True(t, ok, "expected retried job to be requeued")

	assert.False(t, b.WorkFailed(job), "second WORK_FAIL should exceed retry budget 1 and be terminal")
	require.NoError(t, b.Complete(job))
}

func TestLoadFromAdapterReplaysWithoutRepersisting(t *testing.T) {
	mem := queueadapter.NewMemory()
	mem.Add(queueadapter.Record{Unique: "u1", Function: "reverse", Data: []byte("a"), Priority: protocol.PriorityNormal})
	mem.Add(queueadapter.Record{Unique: "u2", Function: "reverse", Data: []byte("b"), Priority: protocol.PriorityHigh})

	b := New("T", WithAdapter(mem))
	require.NoError(t, b.LoadFromAdapter())

	fn, ok := b.Function("reverse")
	require.True(t, ok)
	assert.Equal(t, 2, fn.JobTotal)

	ws := NewWorkerSession("w1", nil)
	ws.CanDo("reverse", 0)
	b.RegisterWorker("reverse", ws)

	job, ok := b.GrabJob(ws)
	require.True(t, ok, "expected high-priority replayed job first")
	assert.Equal(t, "b", string(job.Data))
	require.NoError(t, b.Complete(job))

	var replayed []queueadapter.Record
	mem.Replay(func(rec queueadapter.Record) error {
		replayed = append(replayed, rec)
		return nil
	})
	require.Len(t, replayed, 1, "expected Complete to call queue_done on the replayed job, leaving only u1")
	assert.Equal(t, "u1", replayed[0].Unique)
}

func TestCompletePrunesClientForegroundSet(t *testing.T) {
	b := New("T")
	c := NewClientSession("c1", func(cmd protocol.Command, args ...[]byte) error { return nil })

	job, _, err := b.JobAdd("reverse", "", []byte("x"), protocol.PriorityNormal, c)
	require.NoError(t, err)
	assert.Contains(t, c.Jobs(), job.Handle)

	ws := NewWorkerSession("w1", nil)
	ws.CanDo("reverse", 0)
	b.RegisterWorker("reverse", ws)
	grabbed, ok := b.GrabJob(ws)
	require.True(t, ok)

	require.NoError(t, b.Complete(grabbed))
	assert.Empty(t, c.Jobs(), "Complete should prune the job from the client's foreground set")
}

func TestGetStatus(t *testing.T) {
	b := New("T")
	job, _, err := b.JobAdd("reverse", "", []byte("x"), protocol.PriorityNormal, nil)
	require.NoError(t, err)

	known, running, _, _ := b.GetStatus(job.Handle)
	assert.True(t, known)
	assert.False(t, running, "expected not running before grab")

	b.SetProgress(job, 3, 10)

	ws := NewWorkerSession("w1", nil)
	ws.CanDo("reverse", 0)
	b.RegisterWorker("reverse", ws)
	b.GrabJob(ws)

	known, running, num, denom := b.GetStatus(job.Handle)
	assert.True(t, known)
	assert.True(t, running)
	assert.Equal(t, 3, num)
	assert.Equal(t, 10, denom)

	known, _, _, _ = b.GetStatus("nonexistent:1")
	assert.False(t, known, "expected unknown handle to report known=false")
}
