package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/bossjones/gearman-server/internal/broker"
	"github.com/bossjones/gearman-server/internal/logging"
	"github.com/bossjones/gearman-server/internal/protocol"
)

// Session owns one connection for its lifetime. It starts out with no
// role; the first worker command (CAN_DO*, CANT_DO, RESET_ABILITIES,
// PRE_SLEEP, GRAB_JOB*) attaches a worker session, and the first
// foreground SUBMIT_JOB*, OPTION_REQ, or SET_CLIENT_ID on a non-worker
// attaches a client session. Nothing stops one connection from carrying
// both roles.
type Session struct {
	id     string
	conn   net.Conn
	r      *bufio.Reader
	broker *broker.Broker
	logger *logging.Logger

	writeMu sync.Mutex

	worker *broker.WorkerSession
	client *broker.ClientSession
}

// New wraps conn for id against b, logging through logger.
func New(id string, conn net.Conn, b *broker.Broker, logger *logging.Logger) *Session {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Session{
		id:     id,
		conn:   conn,
		r:      bufio.NewReaderSize(conn, 4096),
		broker: b,
		logger: logger,
	}
}

// Serve reads frames until the connection closes or a fatal protocol
// error occurs, dispatching each one and tearing down any broker-side
// registration on exit.
func (s *Session) Serve() {
	defer s.teardown()

	peek := &peekReader{r: s.r}
	magic, err := peek.sniffMagic()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.logger.Debug("session sniff failed", "id", s.id, "err", err)
		}
		return
	}

	if magic == protocol.MagicText {
		s.serveText()
		return
	}
	s.serveBinary()
}

func (s *Session) serveBinary() {
	for {
		pkt, err := readPacket(s.r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("session read failed", "id", s.id, "err", err)
			}
			return
		}
		if err := s.dispatch(pkt); err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("session dispatch failed", "id", s.id, "cmd", pkt.Command.String(), "err", err)
			}
			return
		}
	}
}

func (s *Session) teardown() {
	if s.worker != nil {
		s.broker.WorkerDisconnected(s.worker)
	}
	if s.client != nil {
		if pending := s.client.Jobs(); len(pending) > 0 {
			s.logger.Debug("client disconnected with foreground jobs pending", "id", s.id, "handles", pending)
		}
		s.broker.DetachClient(s.client)
	}
	s.conn.Close()
}

// sendRes writes a broker->peer frame. Safe to call from the Notify
// callback on a goroutine other than the one running Serve.
func (s *Session) sendRes(cmd protocol.Command, args ...[]byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writePacket(s.conn, protocol.New(protocol.MagicRes, cmd, args...))
}

func (s *Session) sendError(code, message string) error {
	return s.sendRes(protocol.CmdError, []byte(code), []byte(message))
}

func (s *Session) dispatch(pkt protocol.Packet) error {
	switch pkt.Command {
	// Worker commands.
	case protocol.CmdCanDo:
		return s.handleCanDo(pkt.ArgString(0), 0)
	case protocol.CmdCanDoTimeout:
		timeout, _ := strconv.Atoi(pkt.ArgString(1))
		return s.handleCanDo(pkt.ArgString(0), time.Duration(timeout)*time.Second)
	case protocol.CmdCantDo:
		return s.handleCantDo(pkt.ArgString(0))
	case protocol.CmdResetAbilities:
		return s.handleResetAbilities()
	case protocol.CmdPreSleep:
		return s.handlePreSleep()
	case protocol.CmdGrabJob:
		return s.handleGrabJob(false)
	case protocol.CmdGrabJobUniq:
		return s.handleGrabJob(true)
	case protocol.CmdWorkData:
		return s.handleWorkForward(protocol.CmdWorkData, pkt)
	case protocol.CmdWorkWarning:
		return s.handleWorkForward(protocol.CmdWorkWarning, pkt)
	case protocol.CmdWorkStatus:
		return s.handleWorkStatus(pkt)
	case protocol.CmdWorkComplete:
		return s.handleWorkComplete(pkt)
	case protocol.CmdWorkException:
		return s.handleWorkException(pkt)
	case protocol.CmdWorkFail:
		return s.handleWorkFail(pkt)
	case protocol.CmdAllYours:
		return nil // no multi-threaded worker priority to hand off; accepted as a no-op.

	// Client commands.
	case protocol.CmdSubmitJob, protocol.CmdSubmitJobBG,
		protocol.CmdSubmitJobHigh, protocol.CmdSubmitJobHighBG,
		protocol.CmdSubmitJobLow, protocol.CmdSubmitJobLowBG:
		return s.handleSubmitJob(pkt)
	case protocol.CmdGetStatus:
		return s.handleGetStatus(pkt.ArgString(0))
	case protocol.CmdSetClientID:
		return s.handleSetClientID(pkt.ArgString(0))
	case protocol.CmdOptionReq:
		return s.handleOptionReq(pkt.ArgString(0))
	case protocol.CmdEchoReq:
		return s.sendRes(protocol.CmdEchoRes, pkt.Args...)

	default:
		return s.sendError("unknown_command", fmt.Sprintf("unrecognized command %s", pkt.Command))
	}
}
