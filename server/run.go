// File: server/run.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One reactor pass: accept-drain, then poll and dispatch every connection
// that existed before the pass began. Nothing here blocks; the caller's
// loop is the only scheduler.

package server

import (
	"fmt"
	"log/slog"

	"github.com/momentics/uhttp/api"
)

// Poll runs one non-blocking reactor pass. Failures of individual
// connections are reported through the error callback and do not abort the
// pass; an error is returned only when the server cannot run a pass at all.
func (s *Server) Poll() error {
	if s.destroyed {
		return errDestroyed
	}
	if !s.started {
		return api.NewError(api.ErrCodeInvalidArgument, "poll on a server that is not started")
	}

	// Snapshot before accepting so new connections wait for the next pass.
	for _, h := range s.conns.Handles() {
		s.pending.Add(h)
	}
	s.acceptPending()

	for s.pending.Length() > 0 {
		s.dispatch(s.pending.Remove().(api.Handle))
	}
	s.metrics.Pass()
	return nil
}

// acceptPending drains the listen queue into the table.
func (s *Server) acceptPending() {
	for s.listen.Valid() {
		h, peer, err := s.sockets.Accept(s.listen)
		if err != nil {
			s.report(api.ErrCodeSocket, fmt.Sprintf("accept: %v", err))
			return
		}
		if !h.Valid() {
			return
		}

		c, err := s.newConn(h, peer)
		if err != nil {
			_ = s.sockets.Close(h)
			s.report(api.CodeOf(err), err.Error())
			continue
		}
		if err := s.conns.Append(c); err != nil {
			_ = s.release(c)
			s.metrics.Closed(reasonRejected)
			s.report(api.CodeOf(err), fmt.Sprintf("track connection from %s: %v", peer, err))
			continue
		}
		s.metrics.Accepted()
		s.setActive()
		s.logger.Debug("connection accepted",
			slog.String("handle", h.String()),
			slog.String("peer", peer.String()))
	}
}

func (s *Server) newConn(h api.Handle, peer api.Address) (*Conn, error) {
	if err := s.sockets.SetNonblocking(h, true); err != nil {
		return nil, api.WrapError(api.ErrCodeSocket, "set connection non-blocking", err).
			WithContext("handle", h.String()).
			WithContext("peer", peer.String())
	}
	return &Conn{handle: h, srv: s, peer: peer}, nil
}

// dispatch refreshes the readiness of the connection keyed by h and acts on it.
// Handles removed earlier in the pass are skipped.
func (s *Server) dispatch(h api.Handle) {
	idx := s.conns.FindByHandle(h)
	if idx < 0 {
		return
	}
	c, _ := s.conns.At(idx)

	ev, err := s.sockets.Poll(h)
	if err != nil {
		s.report(api.ErrCodeSocket, fmt.Sprintf("poll %s: %v", h, err))
		return
	}
	c.events = ev

	switch {
	case ev&(api.EventError|api.EventInvalid) != 0:
		reason := reasonError
		if ev.Has(api.EventInvalid) {
			reason = reasonInvalid
		}
		peer := c.peer
		_ = s.closeConn(c, reason)
		s.report(api.ErrCodeUnhandledReadiness,
			fmt.Sprintf("connection %s from %s closed on readiness %s", h, peer, ev))
	case ev.Has(api.EventHangup):
		_ = s.closeConn(c, reasonHangup)
	case ev.Has(api.EventReceive):
		if err := s.handler.OnReceive(c); err != nil {
			s.report(api.ErrCodeHandler, fmt.Sprintf("connection %s: %v", h, err))
		}
	}
}

// closeConn removes c from the table by handle and releases its socket.
func (s *Server) closeConn(c *Conn, reason string) error {
	h := c.handle
	if idx := s.conns.FindByHandle(h); idx >= 0 {
		if _, err := s.conns.RemoveAt(idx); err != nil {
			s.report(api.CodeOf(err), err.Error())
		}
	}
	err := s.release(c)
	s.metrics.Closed(reason)
	s.setActive()
	s.logger.Debug("connection closed",
		slog.String("handle", h.String()),
		slog.String("peer", c.peer.String()),
		slog.String("reason", reason))
	if err != nil {
		s.report(api.ErrCodeSocket, err.Error())
	}
	return err
}

func (s *Server) release(c *Conn) error {
	h := c.handle
	c.handle = api.InvalidHandle
	if err := s.sockets.Close(h); err != nil {
		return api.WrapError(api.ErrCodeSocket, "close connection", err).WithContext("handle", h.String())
	}
	return nil
}
