// File: server/options.go
// Package server defines functional options and the enumerated option
// interface of the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"
	"log/slog"

	"github.com/momentics/uhttp/api"
	"github.com/momentics/uhttp/control"
	"github.com/momentics/uhttp/table"
)

// DefaultBacklog is used when no backlog, or a zero backlog, is configured.
const DefaultBacklog = 16

// Option customizes server initialization.
type Option func(*Server)

// WithLogger sets the structured logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *control.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithHandler sets the receive handler. Nil keeps DiscardHandler.
func WithHandler(h Handler) Option {
	return func(s *Server) {
		if h != nil {
			s.handler = h
		}
	}
}

// WithMaxConnections bounds the connection table. Connections accepted
// beyond the limit are closed and reported; 0 means unbounded.
func WithMaxConnections(n int) Option {
	return func(s *Server) {
		s.conns = table.New[*Conn](n)
	}
}

// WithProbes registers server probes in dp.
func WithProbes(dp *control.DebugProbes) Option {
	return func(s *Server) {
		s.probes = dp
	}
}

// SetOption stores value under name. The dynamic type of value must match
// name; a mismatch, an unknown name or a negative backlog fails with
// invalid-argument and is also reported through the error callback.
// Changes take effect on the next Start.
func (s *Server) SetOption(name api.OptionName, value api.OptionValue) error {
	if s.destroyed {
		return errDestroyed
	}
	if value == nil || value.Option() != name {
		return s.rejectOption(name, "option value does not match option name")
	}
	switch v := value.(type) {
	case api.BindAddr:
		s.bindAddr = api.Address(v)
	case api.Backlog:
		if v < 0 {
			return s.rejectOption(name, fmt.Sprintf("negative backlog %d", int(v)))
		}
		if v == 0 {
			v = DefaultBacklog
		}
		s.backlog = int(v)
	case api.ErrorCallback:
		s.onError = api.ErrorFunc(v)
	default:
		return s.rejectOption(name, "unknown option")
	}
	return nil
}

// GetOption returns the current value of name. The default error callback
// is returned as a nil api.ErrorCallback.
func (s *Server) GetOption(name api.OptionName) (api.OptionValue, error) {
	if s.destroyed {
		return nil, errDestroyed
	}
	switch name {
	case api.OptionBindAddr:
		return api.BindAddr(s.bindAddr), nil
	case api.OptionBacklog:
		return api.Backlog(s.backlog), nil
	case api.OptionErrorFunc:
		return api.ErrorCallback(s.onError), nil
	default:
		return nil, s.rejectOption(name, "unknown option")
	}
}

func (s *Server) rejectOption(name api.OptionName, msg string) error {
	err := api.NewError(api.ErrCodeInvalidArgument, msg).
		WithContext("option", fmt.Sprintf("%s(%d)", name, int(name)))
	s.report(api.ErrCodeInvalidArgument, err.Error())
	return err
}
