package session_test

import (
	"io"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bossjones/gearman-server/internal/broker"
	"github.com/bossjones/gearman-server/internal/logging"
	"github.com/bossjones/gearman-server/internal/protocol"
	"github.com/bossjones/gearman-server/internal/queueadapter"
	"github.com/bossjones/gearman-server/internal/session"
)

func sendPacket(conn net.Conn, cmd protocol.Command, args ...[]byte) {
	data, err := protocol.Encode(protocol.New(protocol.MagicReq, cmd, args...))
	Expect(err).NotTo(HaveOccurred())
	_, err = conn.Write(data)
	Expect(err).NotTo(HaveOccurred())
}

func recvPacket(conn net.Conn) protocol.Packet {
	header := make([]byte, protocol.HeaderSize)
	_, err := io.ReadFull(conn, header)
	Expect(err).NotTo(HaveOccurred())
	_, _, argLen, err := protocol.DecodeHeader(header)
	Expect(err).NotTo(HaveOccurred())
	body := make([]byte, argLen)
	if argLen > 0 {
		_, err = io.ReadFull(conn, body)
		Expect(err).NotTo(HaveOccurred())
	}
	pkt, err := protocol.Decode(header, body)
	Expect(err).NotTo(HaveOccurred())
	return pkt
}

// newSession plumbs one end of a net.Pipe into a session.Session
// serving against b, and returns the peer end for the test to drive.
func newSession(id string, b *broker.Broker) net.Conn {
	peer, local := net.Pipe()
	sess := session.New(id, local, b, logging.Nop())
	go sess.Serve()
	return peer
}

var _ = Describe("end-to-end scenarios", func() {
	var b *broker.Broker

	BeforeEach(func() {
		b = broker.New("H:s1")
	})

	It("completes a simple round-trip", func() {
		worker := newSession("w1", b)
		defer worker.Close()
		sendPacket(worker, protocol.CmdCanDo, []byte("reverse"))
		sendPacket(worker, protocol.CmdPreSleep)

		client := newSession("c1", b)
		defer client.Close()
		sendPacket(client, protocol.CmdSubmitJob, []byte("reverse"), []byte(""), []byte("hello"))

		created := recvPacket(client)
		Expect(created.Command).To(Equal(protocol.CmdJobCreated))
		handle := created.ArgString(0)
		Expect(handle).To(Equal("H:s1:1"))

		noop := recvPacket(worker)
		Expect(noop.Command).To(Equal(protocol.CmdNoop))

		sendPacket(worker, protocol.CmdGrabJob)
		assigned := recvPacket(worker)
		Expect(assigned.Command).To(Equal(protocol.CmdJobAssign))
		Expect(assigned.ArgString(0)).To(Equal(handle))
		Expect(assigned.ArgString(1)).To(Equal("reverse"))
		Expect(string(assigned.Arg(2))).To(Equal("hello"))

		sendPacket(worker, protocol.CmdWorkComplete, []byte(handle), []byte("olleh"))

		result := recvPacket(client)
		Expect(result.Command).To(Equal(protocol.CmdWorkComplete))
		Expect(result.ArgString(0)).To(Equal(handle))
		Expect(string(result.Arg(1))).To(Equal("olleh"))
	})

	It("dispatches high priority before normal and low", func() {
		worker := newSession("w1", b)
		defer worker.Close()
		sendPacket(worker, protocol.CmdCanDo, []byte("reverse"))
		sendPacket(worker, protocol.CmdPreSleep)

		client := newSession("c1", b)
		defer client.Close()
		sendPacket(client, protocol.CmdSubmitJobLow, []byte("reverse"), []byte(""), []byte("low"))
		recvPacket(client)
		sendPacket(client, protocol.CmdSubmitJob, []byte("reverse"), []byte(""), []byte("normal"))
		recvPacket(client)
		sendPacket(client, protocol.CmdSubmitJobHigh, []byte("reverse"), []byte(""), []byte("high"))
		recvPacket(client)

		// The first submission woke the capable worker; later ones don't
		// while its NOOP is still pending.
		Expect(recvPacket(worker).Command).To(Equal(protocol.CmdNoop))

		sendPacket(worker, protocol.CmdGrabJob)
		first := recvPacket(worker)
		Expect(string(first.Arg(2))).To(Equal("high"))

		sendPacket(worker, protocol.CmdWorkComplete, first.Arg(0), []byte("done"))
		recvPacket(client)

		sendPacket(worker, protocol.CmdGrabJob)
		second := recvPacket(worker)
		Expect(string(second.Arg(2))).To(Equal("normal"))
	})

	It("dedups identical (function, unique) submissions", func() {
		client := newSession("c1", b)
		defer client.Close()
		sendPacket(client, protocol.CmdSubmitJob, []byte("reverse"), []byte("u"), []byte("A"))
		first := recvPacket(client)

		sendPacket(client, protocol.CmdSubmitJob, []byte("reverse"), []byte("u"), []byte("B"))
		second := recvPacket(client)

		Expect(second.ArgString(0)).To(Equal(first.ArgString(0)))

		worker := newSession("w1", b)
		defer worker.Close()
		sendPacket(worker, protocol.CmdCanDo, []byte("reverse"))
		sendPacket(worker, protocol.CmdGrabJob)
		assigned := recvPacket(worker)
		Expect(string(assigned.Arg(2))).To(Equal("A"))
	})

	It("reaps a job whose only foreground client disconnects before assignment", func() {
		client := newSession("c1", b)
		sendPacket(client, protocol.CmdSubmitJob, []byte("reverse"), []byte(""), []byte("x"))
		recvPacket(client)
		client.Close()

		worker := newSession("w1", b)
		defer worker.Close()
		sendPacket(worker, protocol.CmdCanDo, []byte("reverse"))

		// The disconnect's broker-side teardown runs on its own
		// goroutine; retry the grab until it has landed.
		Eventually(func() protocol.Command {
			sendPacket(worker, protocol.CmdGrabJob)
			return recvPacket(worker).Command
		}, time.Second, 10*time.Millisecond).Should(Equal(protocol.CmdNoJob))
	})

	It("replays a persisted queue without re-persisting", func() {
		mem := queueadapter.NewMemory()
		mem.Add(queueadapter.Record{Unique: "u1", Function: "reverse", Data: []byte("a"), Priority: protocol.PriorityNormal})
		mem.Add(queueadapter.Record{Unique: "u2", Function: "reverse", Data: []byte("b"), Priority: protocol.PriorityNormal})
		mem.Add(queueadapter.Record{Unique: "u3", Function: "reverse", Data: []byte("c"), Priority: protocol.PriorityNormal})

		replayed := broker.New("H:s2", broker.WithAdapter(mem))
		Expect(replayed.LoadFromAdapter()).To(Succeed())

		fn, ok := replayed.Function("reverse")
		Expect(ok).To(BeTrue())
		Expect(fn.JobTotal).To(Equal(3))

		var stillQueued []queueadapter.Record
		mem.Replay(func(rec queueadapter.Record) error {
			stillQueued = append(stillQueued, rec)
			return nil
		})
		Expect(stillQueued).To(HaveLen(3))
	})

	It("passes WORK_STATUS through to the client and reflects it in GET_STATUS", func() {
		worker := newSession("w1", b)
		defer worker.Close()
		sendPacket(worker, protocol.CmdCanDo, []byte("reverse"))
		sendPacket(worker, protocol.CmdPreSleep)

		client := newSession("c1", b)
		defer client.Close()
		sendPacket(client, protocol.CmdSubmitJob, []byte("reverse"), []byte(""), []byte("x"))
		created := recvPacket(client)
		handle := created.ArgString(0)
		Expect(recvPacket(worker).Command).To(Equal(protocol.CmdNoop))

		sendPacket(worker, protocol.CmdGrabJob)
		recvPacket(worker)

		sendPacket(worker, protocol.CmdWorkStatus, []byte(handle), []byte("3"), []byte("10"))
		status := recvPacket(client)
		Expect(status.Command).To(Equal(protocol.CmdWorkStatus))
		Expect(status.ArgString(1)).To(Equal("3"))
		Expect(status.ArgString(2)).To(Equal("10"))

		sendPacket(client, protocol.CmdGetStatus, []byte(handle))
		statusRes := recvPacket(client)
		Expect(statusRes.Command).To(Equal(protocol.CmdStatusRes))
		Expect(statusRes.ArgString(1)).To(Equal("1"))
		Expect(statusRes.ArgString(2)).To(Equal("1"))
		Expect(statusRes.ArgString(3)).To(Equal("3"))
		Expect(statusRes.ArgString(4)).To(Equal("10"))
	})
})
