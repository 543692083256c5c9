// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server lifecycle: create, configure, start, stop, destroy.
// The reactor pass lives in run.go.
//
// A Server is single-threaded: Start, Poll, Stop, Destroy, SetOption and
// GetOption must be called from one goroutine. Only the probe values are
// safe to read concurrently.

package server

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/momentics/uhttp/api"
	"github.com/momentics/uhttp/control"
	"github.com/momentics/uhttp/table"
)

var errDestroyed = api.NewError(api.ErrCodeInvalidArgument, "server destroyed")

// Close reasons used in logs and metrics.
const (
	reasonHangup   = "hangup"
	reasonError    = "error"
	reasonInvalid  = "invalid"
	reasonLocal    = "local"
	reasonStop     = "stop"
	reasonRejected = "rejected"
)

// Server owns the listening socket and the connection table.
type Server struct {
	sockets api.Sockets
	logger  *slog.Logger
	metrics *control.Metrics
	probes  *control.DebugProbes
	handler Handler

	bindAddr api.Address
	backlog  int
	onError  api.ErrorFunc

	listen  api.Handle
	conns   *table.Table[*Conn]
	pending *queue.Queue

	started   bool
	destroyed bool

	// mirrored for probes read from other goroutines
	active     atomic.Int64
	listening  atomic.Bool
	listenAddr atomic.Value
}

// New creates a stopped server on top of sockets with the default backlog,
// no bind address, the default error callback and an empty table.
func New(sockets api.Sockets, opts ...Option) (*Server, error) {
	if sockets == nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "nil socket layer")
	}
	s := &Server{
		sockets: sockets,
		logger:  slog.Default(),
		handler: DiscardHandler{},
		backlog: DefaultBacklog,
		listen:  api.InvalidHandle,
		conns:   table.New[*Conn](0),
		pending: queue.New(),
	}
	s.listenAddr.Store("")
	for _, o := range opts {
		o(s)
	}
	if s.probes != nil {
		s.registerProbes(s.probes)
	}
	return s, nil
}

func (s *Server) registerProbes(dp *control.DebugProbes) {
	dp.RegisterProbe("server.connections", func() any { return s.active.Load() })
	dp.RegisterProbe("server.listening", func() any { return s.listening.Load() })
	dp.RegisterProbe("server.listen_addr", func() any { return s.listenAddr.Load() })
}

// Start creates the bound socket, listens and switches it to non-blocking
// mode, in that order. Any failure is a platform-socket error and leaves the
// listening handle invalid; a socket created before the failure is closed.
func (s *Server) Start() error {
	if s.destroyed {
		return errDestroyed
	}
	if s.started {
		return api.NewError(api.ErrCodeInvalidArgument, "server already started")
	}

	h, err := s.sockets.CreateBound(s.bindAddr)
	if err != nil {
		return s.startFailed("create bound socket", err)
	}
	if err := s.sockets.Listen(h, s.backlog); err != nil {
		_ = s.sockets.Close(h)
		return s.startFailed("listen", err)
	}
	if err := s.sockets.SetNonblocking(h, true); err != nil {
		_ = s.sockets.Close(h)
		return s.startFailed("set listener non-blocking", err)
	}

	s.listen = h
	s.started = true
	s.listening.Store(true)
	addr := s.ListenAddress()
	s.listenAddr.Store(addr.String())
	s.logger.Debug("server started",
		slog.String("addr", addr.String()),
		slog.Int("backlog", s.backlog),
		slog.String("handle", h.String()))
	return nil
}

func (s *Server) startFailed(step string, err error) error {
	return api.WrapError(api.ErrCodeSocket, step, err).
		WithContext("addr", s.bindAddr.String())
}

// Stop closes the listening socket, then every connection in index order,
// and clears the table. Stop is not graceful and may be called repeatedly.
func (s *Server) Stop() error {
	if s.destroyed {
		return errDestroyed
	}
	var errs []error
	if s.listen.Valid() {
		if err := s.sockets.Close(s.listen); err != nil {
			errs = append(errs, err)
		}
		s.listen = api.InvalidHandle
	}
	n := s.conns.Len()
	for _, c := range s.conns.All() {
		if err := s.release(c); err != nil {
			errs = append(errs, err)
		}
		s.metrics.Closed(reasonStop)
	}
	s.conns.Clear()
	s.setActive()

	if s.started {
		s.logger.Debug("server stopped", slog.Int("closed", n))
	}
	s.started = false
	s.listening.Store(false)
	s.listenAddr.Store("")

	if len(errs) > 0 {
		return api.WrapError(api.ErrCodeSocket, "stop", errors.Join(errs...))
	}
	return nil
}

// Destroy stops the server and makes it unusable.
func (s *Server) Destroy() error {
	if s.destroyed {
		return errDestroyed
	}
	err := s.Stop()
	s.destroyed = true
	return err
}

// Started reports whether Start succeeded and Stop has not run since.
func (s *Server) Started() bool { return s.started }

// Len returns the number of tracked connections.
func (s *Server) Len() int { return s.conns.Len() }

// Conns returns a snapshot of the tracked connections in table order.
func (s *Server) Conns() []*Conn {
	out := make([]*Conn, 0, s.conns.Len())
	for _, c := range s.conns.All() {
		out = append(out, c)
	}
	return out
}

// ListenHandle returns the listening handle, or api.InvalidHandle.
func (s *Server) ListenHandle() api.Handle { return s.listen }

type localAddresser interface {
	LocalAddress(h api.Handle) (api.Address, error)
}

// ListenAddress returns the address the listener is bound to. When the
// socket layer can report it, the kernel-assigned port is included.
func (s *Server) ListenAddress() api.Address {
	if la, ok := s.sockets.(localAddresser); ok && s.listen.Valid() {
		if addr, err := la.LocalAddress(s.listen); err == nil {
			return addr
		}
	}
	return s.bindAddr
}

// report routes a diagnostic through the configured error callback.
func (s *Server) report(code api.ErrorCode, desc string) {
	s.metrics.Error(code)
	if s.onError != nil {
		s.onError(code, desc)
		return
	}
	s.logger.Debug("uhttp error", slog.String("code", code.String()), slog.String("description", desc))
}

func (s *Server) setActive() {
	n := s.conns.Len()
	s.active.Store(int64(n))
	s.metrics.SetActive(n)
}
