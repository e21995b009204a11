// Package protocol implements the Length-Framed Socket: each message is
// prefixed by a 4-byte unsigned big-endian length of the UTF-8 body.
package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/ecmwf-go/retriever/internal/errs"
)

// DefaultTimeout is the default per-connection read/write deadline.
const DefaultTimeout = 15 * time.Second

// Conn wraps a net.Conn with length-prefixed framing.
type Conn struct {
	conn    net.Conn
	timeout time.Duration
}

// New wraps conn with the given per-operation timeout.
func New(conn net.Conn, timeout time.Duration) *Conn {
	return &Conn{conn: conn, timeout: timeout}
}

// RemoteAddr exposes the peer address for allow-list checks.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Send writes one length-prefixed frame.
func (c *Conn) Send(text string) error {
	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return errs.NewSocketError("setting write deadline", err)
		}
	}

	body := []byte(text)
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(body)))

	if _, err := c.conn.Write(append(header, body...)); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return errs.NewSocketError("sending timed out", err)
		}
		return errs.NewSocketError("failed to send message: connection error", err)
	}
	return nil
}

// Receive reads one length-prefixed frame. Returns ("", false, nil) if the
// underlying stream closed before a frame length could be read (treated
// as a clean disconnect per spec.md §9's empty-frame decision), or a
// *errs.SocketError for timeouts and mid-frame resets.
func (c *Conn) Receive() (string, bool, error) {
	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return "", false, errs.NewSocketError("setting read deadline", err)
		}
	}

	header, err := c.receiveAll(4)
	if err != nil {
		return "", false, err
	}
	if header == nil {
		return "", false, nil
	}

	length := binary.BigEndian.Uint32(header)
	if length == 0 {
		// Ambiguous between an explicit empty frame and a malformed
		// send; treated as connection close per design decision.
		return "", false, nil
	}

	data, err := c.receiveAll(int(length))
	if err != nil {
		return "", false, err
	}
	if data == nil {
		return "", false, nil
	}
	return string(data), true, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.conn.Close() }

// receiveAll reads exactly n bytes, or returns (nil, nil) if the peer
// closed the connection before any bytes of this frame arrived.
func (c *Conn) receiveAll(n int) ([]byte, error) {
	data := make([]byte, 0, n)
	for len(data) < n {
		buf := make([]byte, n-len(data))
		read, err := c.conn.Read(buf)
		if read > 0 {
			data = append(data, buf[:read]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(data) == 0 {
					return nil, nil
				}
				return nil, errs.NewSocketError("connection closed mid-frame", err)
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, errs.NewSocketError("receiving timed out", err)
			}
			return nil, errs.NewSocketError("failed to receive: connection error", err)
		}
		if read == 0 {
			return nil, nil
		}
	}
	return data, nil
}
