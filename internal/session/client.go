package session

import (
	"fmt"

	"github.com/bossjones/gearman-server/internal/broker"
	"github.com/bossjones/gearman-server/internal/protocol"
)

// ensureClient lazily attaches a ClientSession to this connection,
// wiring its Send callback to a RES frame write.
func (s *Session) ensureClient() *broker.ClientSession {
	if s.client == nil {
		s.client = broker.NewClientSession(s.id, s.sendRes)
	}
	return s.client
}

func (s *Session) handleSubmitJob(pkt protocol.Packet) error {
	if len(pkt.Args) < 2 {
		return s.sendError("bad_args", "SUBMIT_JOB requires function, unique and data fields")
	}
	fn := pkt.ArgString(0)
	unique := pkt.ArgString(1)
	var data []byte
	if len(pkt.Args) > 2 {
		data = pkt.Arg(2)
	}

	var fgClient *broker.ClientSession
	if !pkt.Command.IsBackground() {
		fgClient = s.ensureClient()
	}

	job, _, err := s.broker.JobAdd(fn, unique, data, protocol.PriorityForSubmit(pkt.Command), fgClient)
	if err != nil {
		return s.sendError("queue_full", err.Error())
	}
	return s.sendRes(protocol.CmdJobCreated, []byte(job.Handle))
}

func (s *Session) handleGetStatus(handle string) error {
	known, running, numerator, denominator := s.broker.GetStatus(handle)
	var knownByte, runningByte byte = '0', '0'
	if known {
		knownByte = '1'
	}
	if running {
		runningByte = '1'
	}
	return s.sendRes(protocol.CmdStatusRes,
		[]byte(handle),
		[]byte{knownByte},
		[]byte{runningByte},
		[]byte(fmt.Sprintf("%d", numerator)),
		[]byte(fmt.Sprintf("%d", denominator)),
	)
}

func (s *Session) handleSetClientID(id string) error {
	if s.worker != nil {
		s.worker.ClientID = id
		return nil
	}
	s.ensureClient().ClientID = id
	return nil
}

func (s *Session) handleOptionReq(name string) error {
	if name == "" {
		return s.sendError("bad_args", "OPTION_REQ requires an option name")
	}
	s.ensureClient().RequestOption(name)
	return nil
}
