// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection entity and receive handlers.

package server

import (
	"errors"
	"io"

	"github.com/momentics/uhttp/api"
)

// Conn is one accepted connection tracked in the server's connection table.
// It is created only by the accept-drain step of Poll and dies either on
// hangup, on Close, or when the server stops.
type Conn struct {
	handle api.Handle
	srv    *Server
	events api.Events
	peer   api.Address
}

// Handle returns the socket handle, or api.InvalidHandle once closed.
func (c *Conn) Handle() api.Handle { return c.handle }

// Server returns the owning server.
func (c *Conn) Server() *Server { return c.srv }

// Events returns the readiness bitmap observed by the last poll.
func (c *Conn) Events() api.Events { return c.events }

// Peer returns the remote address reported by accept.
func (c *Conn) Peer() api.Address { return c.peer }

// Closed reports whether the connection was released.
func (c *Conn) Closed() bool { return !c.handle.Valid() }

// Send writes p without blocking.
func (c *Conn) Send(p []byte) (int, error) {
	if c.Closed() {
		return 0, api.ErrConnClosed
	}
	return c.srv.sockets.Send(c.handle, p)
}

// Recv reads into p without blocking. io.EOF means the peer shut down.
func (c *Conn) Recv(p []byte) (int, error) {
	if c.Closed() {
		return 0, api.ErrConnClosed
	}
	return c.srv.sockets.Recv(c.handle, p)
}

// Close removes the connection from the table and releases its socket.
// Safe to call from inside OnReceive; closing twice is a no-op.
func (c *Conn) Close() error {
	if c.Closed() {
		return nil
	}
	return c.srv.closeConn(c, reasonLocal)
}

// Handler reacts to receive readiness on a connection.
// Errors are reported through the server error callback and never abort a pass.
type Handler interface {
	OnReceive(c *Conn) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(c *Conn) error

// OnReceive calls f(c).
func (f HandlerFunc) OnReceive(c *Conn) error { return f(c) }

// maxReadsPerDispatch bounds the work one connection can take in a pass.
const maxReadsPerDispatch = 16

const readChunk = 4096

// DiscardHandler drains and drops readable bytes so a following hangup
// becomes observable on the next poll.
type DiscardHandler struct{}

// OnReceive implements Handler.
func (DiscardHandler) OnReceive(c *Conn) error {
	var buf [readChunk]byte
	for i := 0; i < maxReadsPerDispatch; i++ {
		if _, err := c.Recv(buf[:]); err != nil {
			return quiet(err)
		}
	}
	return nil
}

// EchoHandler writes every received byte back to the peer.
type EchoHandler struct{}

// OnReceive implements Handler.
func (EchoHandler) OnReceive(c *Conn) error {
	var buf [readChunk]byte
	for i := 0; i < maxReadsPerDispatch; i++ {
		n, err := c.Recv(buf[:])
		if err != nil {
			return quiet(err)
		}
		for p := buf[:n]; len(p) > 0; {
			m, err := c.Send(p)
			if err != nil {
				if errors.Is(err, api.ErrWouldBlock) {
					return api.WrapError(api.ErrCodeResourceExhausted, "echo send buffer full", err).
						WithContext("dropped", len(p))
				}
				return err
			}
			p = p[m:]
		}
	}
	return nil
}

// quiet maps the normal ends of a non-blocking read loop to nil.
func quiet(err error) error {
	if errors.Is(err, api.ErrWouldBlock) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
