// Package server wires the listener, broker lifecycle and connection
// fan-out together. The teacher's new_worker/ask_worker/die_worker
// channel triad in sched.go modeled a fixed worker-thread pool
// explicitly signaled over channels; here each accepted connection
// gets its own goroutine running a *session.Session, and shutdown/drain
// uses a draining flag plus a WaitGroup below, since Go's scheduler
// already gives every connection the concurrency the teacher built that
// pool for.
package server

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/bossjones/gearman-server/internal/broker"
	"github.com/bossjones/gearman-server/internal/logging"
	"github.com/bossjones/gearman-server/internal/session"
)

// Server accepts connections on a single listen address and serves
// each one against a shared Broker.
type Server struct {
	Addr   string
	Broker *broker.Broker
	Logger *logging.Logger

	listener net.Listener
	idSeq    uint64
	wg       sync.WaitGroup

	mu       sync.Mutex
	draining bool
}

// New constructs a Server bound to addr.
func New(addr string, b *broker.Broker, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{Addr: addr, Broker: b, Logger: logger}
}

// ListenAndServe opens the listener, replays any persisted backlog,
// and accepts connections until the listener is closed by Shutdown.
func (s *Server) ListenAndServe() error {
	if err := s.Broker.LoadFromAdapter(); err != nil {
		return fmt.Errorf("server: replay persisted queue: %w", err)
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.Addr, err)
	}
	s.listener = ln
	s.Logger.Info("server listening", "addr", s.Addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			draining := s.draining
			s.mu.Unlock()
			if draining {
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	id := "conn:" + strconv.FormatUint(atomic.AddUint64(&s.idSeq, 1), 10)
	sess := session.New(id, conn, s.Broker, s.Logger)
	sess.Serve()
}

// Shutdown stops accepting new connections. If graceful is true, it
// waits for in-flight connections (ctx permitting); otherwise it
// returns immediately after closing the listener. In-flight connections
// are not closed by Shutdown in either mode.
func (s *Server) Shutdown(ctx context.Context, graceful bool) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	if !graceful {
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
