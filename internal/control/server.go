// Copyright 2026 PresentMon Contributors
// SPDX-License-Identifier: MIT

package control

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/DealsBeam/PresentMon/internal/broker"
)

// Conn is one client's duplex control channel connection.
type Conn interface {
	io.ReadWriteCloser
}

// Listener accepts successive client connections on the control
// channel transport.
type Listener interface {
	Accept() (Conn, error)
	Close() error
}

// FIFOListener serves the control channel over a single named pipe
// opened for simultaneous read and write. A plain POSIX FIFO only
// supports one direction per open, and opening either end blocking
// would deadlock a lone server process waiting on a client that is
// itself waiting on the server — so the pipe is opened O_RDWR, a
// Linux extension that lets one process hold both ends without a
// rendezvous, with O_NONBLOCK during open to guarantee the call never
// blocks regardless of whether a peer exists yet.
type FIFOListener struct {
	path   string
	closed atomic.Bool
}

// NewFIFOListener creates the named pipe at path (removing any stale
// node left by a previous run) and returns a Listener serving it.
func NewFIFOListener(path string) (*FIFOListener, error) {
	_ = os.Remove(path)
	if err := unix.Mkfifo(path, 0o600); err != nil {
		return nil, fmt.Errorf("create control pipe %s: %w", path, err)
	}
	return &FIFOListener{path: path}, nil
}

// Accept opens the control pipe for a new client round. Only one
// logical connection is live at a time on a given FIFOListener,
// matching the original single-instance named-pipe server loop: after
// one client disconnects, the next Accept call serves the next.
func (l *FIFOListener) Accept() (Conn, error) {
	if l.closed.Load() {
		return nil, errors.New("control: listener closed")
	}
	fd, err := unix.Open(l.path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open control pipe: %w", err)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("clear control pipe nonblock: %w", err)
	}
	return os.NewFile(uintptr(fd), l.path), nil
}

// Close removes the underlying pipe node. Any connection already
// accepted keeps working until its own Close.
func (l *FIFOListener) Close() error {
	l.closed.Store(true)
	return os.Remove(l.path)
}

// Server dispatches control-channel connections against a Broker.
type Server struct {
	broker  *broker.Broker
	sink    FrameSink
	logger  *slog.Logger
	queries *queryStore

	nextSessionID atomic.Uint64
}

// NewServer creates a Server. sink may be nil if get-frames should
// always report an empty frame list (e.g. before the gather pipeline
// is wired in).
func NewServer(b *broker.Broker, sink FrameSink, logger *slog.Logger) *Server {
	return &Server{broker: b, sink: sink, logger: logger, queries: newQueryStore()}
}

// Serve accepts connections from l until it returns an error (e.g.
// after Close). Each connection is handled on its own goroutine.
func (s *Server) Serve(l Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn Conn) {
	defer conn.Close()

	id := fmt.Sprintf("session-%d", s.nextSessionID.Add(1))
	session := s.broker.RegisterSession(id)
	d := &dispatcher{b: s.broker, sink: s.sink, session: session, queries: s.queries, logger: s.logger}
	defer s.queries.forget(id)

	reader := NewCommandReader(conn)
	graceful := false
	for {
		line, err := reader.ReadCommand()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("control channel read error", "session", id, "error", err)
			}
			break
		}

		reply, closeAfter, err := d.handle(line)
		if err != nil {
			s.logger.Warn("control command error", "session", id, "command", line, "error", err)
			continue
		}
		if _, err := io.WriteString(conn, reply); err != nil {
			s.logger.Warn("control channel write error", "session", id, "error", err)
			break
		}
		if closeAfter {
			graceful = true
			break
		}
	}

	if err := s.broker.Disconnect(id, graceful); err != nil {
		s.logger.Warn("broker disconnect error", "session", id, "error", err)
	}
}
