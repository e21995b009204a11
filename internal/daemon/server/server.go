// Package server implements the Daemon Server Loop: a TCP acceptor with a
// short poll timeout so a cooperative stop flag can interrupt it without a
// separate wakeup mechanism, handing each accepted connection to a bounded
// connection queue.
package server

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/ecmwf-go/retriever/internal/daemon/protocol"
	"github.com/ecmwf-go/retriever/internal/errs"
	"github.com/ecmwf-go/retriever/internal/logsink"
)

// AcceptTimeout bounds how long one Accept() call blocks before the loop
// re-checks the stop flag.
const AcceptTimeout = 100 * time.Millisecond

// Loop owns the listening socket and the connection queue it feeds.
type Loop struct {
	addr    string
	conns   chan *protocol.Conn
	log     *logsink.Sink
	stopped atomic.Bool
	ln      atomic.Pointer[net.TCPListener]
}

// New constructs a server loop bound to addr (e.g. "0.0.0.0:54500"),
// feeding accepted connections into conns.
func New(addr string, conns chan *protocol.Conn, log *logsink.Sink) *Loop {
	return &Loop{addr: addr, conns: conns, log: log}
}

// Run binds the listening socket and accepts connections until Stop is
// called, wrapping each in a Length-Framed Socket with no application
// timeout (per spec.md §4.6) and enqueueing it. Returns once the socket
// is closed and the accept loop has exited.
func (l *Loop) Run() error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", l.addr)
	if err != nil {
		return errs.NewHandlerError("resolving listen address", err)
	}

	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return errs.NewHandlerError("binding listen socket", err)
	}
	l.ln.Store(ln)

	l.log.Info(fmt.Sprintf("Daemon listening on %s", l.addr))

	for !l.stopped.Load() {
		if err := ln.SetDeadline(time.Now().Add(AcceptTimeout)); err != nil {
			l.log.Err(fmt.Sprintf("failed to set accept deadline: %v", err))
			continue
		}

		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if l.stopped.Load() {
				break
			}
			l.log.Warning(fmt.Sprintf("accept error: %v", err))
			continue
		}

		wrapped := protocol.New(conn, 0)
		select {
		case l.conns <- wrapped:
		default:
			// Connection queue (capacity 25) is full; reject rather than
			// block the acceptor indefinitely.
			l.log.Warning("connection queue full, dropping connection")
			wrapped.Close()
		}
	}

	return nil
}

// Stop sets the stop flag and closes the listening socket. The next
// accept-timeout tick (or the blocked Accept itself, once the socket is
// closed) causes Run to return.
func (l *Loop) Stop() {
	l.stopped.Store(true)
	if ln := l.ln.Load(); ln != nil {
		ln.Close()
	}
}

// Addr returns the bound listen address, or "" before Run has bound the
// socket.
func (l *Loop) Addr() string {
	if ln := l.ln.Load(); ln != nil {
		return ln.Addr().String()
	}
	return ""
}
