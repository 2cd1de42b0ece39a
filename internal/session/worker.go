package session

import (
	"fmt"
	"time"

	"github.com/bossjones/gearman-server/internal/broker"
	"github.com/bossjones/gearman-server/internal/protocol"
)

// ensureWorker lazily attaches a WorkerSession to this connection,
// wiring its Notify callback to an asynchronous NOOP frame write. The
// write runs on its own goroutine so a slow or wedged peer socket
// never blocks the broker lock Notify is called under.
func (s *Session) ensureWorker() *broker.WorkerSession {
	if s.worker == nil {
		s.worker = broker.NewWorkerSession(s.id, func() {
			go func() {
				if err := s.sendRes(protocol.CmdNoop); err != nil {
					s.logger.Debug("notify write failed", "id", s.id, "err", err)
				}
			}()
		})
	}
	return s.worker
}

func (s *Session) handleCanDo(fn string, timeout time.Duration) error {
	if fn == "" {
		return s.sendError("bad_args", "CAN_DO requires a function name")
	}
	ws := s.ensureWorker()
	ws.CanDo(fn, timeout)
	s.broker.RegisterWorker(fn, ws)
	return nil
}

func (s *Session) handleCantDo(fn string) error {
	ws := s.ensureWorker()
	ws.CantDo(fn)
	s.broker.UnregisterWorker(fn, ws)
	return nil
}

func (s *Session) handleResetAbilities() error {
	ws := s.ensureWorker()
	for _, fn := range ws.ResetAbilities() {
		s.broker.UnregisterWorker(fn, ws)
	}
	return nil
}

func (s *Session) handlePreSleep() error {
	ws := s.ensureWorker()
	ws.Sleeping = true
	return nil
}

// handleGrabJob answers GRAB_JOB/GRAB_JOB_UNIQ: JOB_ASSIGN[_UNIQ] if a
// job is available, NO_JOB otherwise. The worker is expected to follow
// a NO_JOB with PRE_SLEEP and wait for an asynchronous NOOP.
func (s *Session) handleGrabJob(withUnique bool) error {
	ws := s.ensureWorker()
	job, ok := s.broker.GrabJob(ws)
	if !ok {
		return s.sendRes(protocol.CmdNoJob)
	}
	if withUnique {
		return s.sendRes(protocol.CmdJobAssignUniq, []byte(job.Handle), []byte(job.Function.Name), []byte(job.Unique), job.Data)
	}
	return s.sendRes(protocol.CmdJobAssign, []byte(job.Handle), []byte(job.Function.Name), job.Data)
}

// argsTail returns args[from:], or nil if args is too short -- pkt.Args
// can be shorter than a handler expects when a peer sends a malformed
// frame.
func argsTail(args [][]byte, from int) [][]byte {
	if from >= len(args) {
		return nil
	}
	return args[from:]
}

// handleWorkForward relays WORK_DATA/WORK_WARNING to every foreground
// client registered on the job, unmodified.
func (s *Session) handleWorkForward(cmd protocol.Command, pkt protocol.Packet) error {
	handle := pkt.ArgString(0)
	job, ok := s.broker.JobByHandle(handle)
	if !ok {
		return s.sendError("unknown_job", fmt.Sprintf("no such job handle %q", handle))
	}
	s.forwardToClients(job, cmd, argsTail(pkt.Args, 1)...)
	return nil
}

func (s *Session) handleWorkStatus(pkt protocol.Packet) error {
	handle := pkt.ArgString(0)
	job, ok := s.broker.JobByHandle(handle)
	if !ok {
		return s.sendError("unknown_job", fmt.Sprintf("no such job handle %q", handle))
	}
	var numerator, denominator int
	fmt.Sscanf(pkt.ArgString(1), "%d", &numerator)
	fmt.Sscanf(pkt.ArgString(2), "%d", &denominator)
	s.broker.SetProgress(job, numerator, denominator)
	s.forwardToClients(job, protocol.CmdWorkStatus, argsTail(pkt.Args, 1)...)
	return nil
}

func (s *Session) handleWorkComplete(pkt protocol.Packet) error {
	handle := pkt.ArgString(0)
	job, ok := s.broker.JobByHandle(handle)
	if !ok {
		return s.sendError("unknown_job", fmt.Sprintf("no such job handle %q", handle))
	}
	s.forwardToClients(job, protocol.CmdWorkComplete, argsTail(pkt.Args, 1)...)
	return s.broker.Complete(job)
}

func (s *Session) handleWorkException(pkt protocol.Packet) error {
	handle := pkt.ArgString(0)
	job, ok := s.broker.JobByHandle(handle)
	if !ok {
		return s.sendError("unknown_job", fmt.Sprintf("no such job handle %q", handle))
	}
	for _, c := range job.Clients {
		if !c.HasOption("exceptions") {
			continue
		}
		if err := c.Send(protocol.CmdWorkException, append([][]byte{[]byte(handle)}, argsTail(pkt.Args, 1)...)...); err != nil {
			s.logger.Debug("forward WORK_EXCEPTION failed", "handle", handle, "err", err)
		}
	}
	return nil
}

// handleWorkFail applies the configured retry budget: a job under
// budget is silently re-queued (no WORK_FAIL forwarded, since the
// client never saw an attempt complete); a terminal one forwards
// WORK_FAIL and frees the job.
func (s *Session) handleWorkFail(pkt protocol.Packet) error {
	handle := pkt.ArgString(0)
	job, ok := s.broker.JobByHandle(handle)
	if !ok {
		return s.sendError("unknown_job", fmt.Sprintf("no such job handle %q", handle))
	}
	if s.broker.WorkFailed(job) {
		return nil
	}
	s.forwardToClients(job, protocol.CmdWorkFail, []byte(handle))
	return s.broker.Complete(job)
}

func (s *Session) forwardToClients(job *broker.Job, cmd protocol.Command, extra ...[]byte) {
	args := append([][]byte{[]byte(job.Handle)}, extra...)
	for _, c := range job.Clients {
		if err := c.Send(cmd, args...); err != nil {
			s.logger.Debug("forward to client failed", "handle", job.Handle, "cmd", cmd.String(), "err", err)
		}
	}
}
