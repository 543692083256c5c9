// Package transport
// Author: momentics <momentics@gmail.com>
//
// Platform-independent facade for the socket primitive layer.
// The per-OS backends live in transport_unix.go, transport_windows.go and
// transport_stub.go; this file only adds the process-lifetime scope.

package transport

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/uhttp/api"
)

// Subsystem is the scoped process-wide socket library resource.
// Acquire it once with Init before the first server is created and release
// it with Deinit after the last server is destroyed.
type Subsystem struct {
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ api.Sockets = (*Subsystem)(nil)

// Init performs platform socket-library initialization (WSAStartup on Windows).
func Init() (*Subsystem, error) {
	if err := startup(); err != nil {
		return nil, api.WrapError(api.ErrCodeSocket, "socket subsystem init", err)
	}
	return &Subsystem{}, nil
}

// Deinit releases the platform socket library. Subsequent calls are no-ops.
func (s *Subsystem) Deinit() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if err := cleanup(); err != nil {
			s.closeErr = api.WrapError(api.ErrCodeSocket, "socket subsystem deinit", err)
		}
	})
	return s.closeErr
}

// Backend names the compiled-in backend.
func (s *Subsystem) Backend() string { return backendName }

func (s *Subsystem) check() error {
	if s == nil || s.closed.Load() {
		return api.ErrSubsystemClosed
	}
	return nil
}

func (s *Subsystem) CreateBound(addr api.Address) (api.Handle, error) {
	if err := s.check(); err != nil {
		return api.InvalidHandle, err
	}
	return createBound(addr)
}

func (s *Subsystem) Listen(h api.Handle, backlog int) error {
	if err := s.check(); err != nil {
		return err
	}
	if !h.Valid() || backlog < 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "listen").
			WithContext("handle", h.String()).WithContext("backlog", backlog)
	}
	return listen(h, backlog)
}

func (s *Subsystem) SetNonblocking(h api.Handle, on bool) error {
	if err := s.check(); err != nil {
		return err
	}
	if !h.Valid() {
		return api.NewError(api.ErrCodeInvalidArgument, "set nonblocking on invalid handle")
	}
	return setNonblocking(h, on)
}

func (s *Subsystem) Accept(h api.Handle) (api.Handle, api.Address, error) {
	if err := s.check(); err != nil {
		return api.InvalidHandle, api.Address{}, err
	}
	if !h.Valid() {
		return api.InvalidHandle, api.Address{}, api.NewError(api.ErrCodeInvalidArgument, "accept on invalid handle")
	}
	return accept(h)
}

func (s *Subsystem) Poll(h api.Handle) (api.Events, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if !h.Valid() {
		return api.EventInvalid, nil
	}
	return poll(h)
}

func (s *Subsystem) Send(h api.Handle, p []byte) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if !h.Valid() {
		return 0, api.NewError(api.ErrCodeInvalidArgument, "send on invalid handle")
	}
	if len(p) == 0 {
		return 0, nil
	}
	return send(h, p)
}

func (s *Subsystem) Recv(h api.Handle, p []byte) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if !h.Valid() {
		return 0, api.NewError(api.ErrCodeInvalidArgument, "recv on invalid handle")
	}
	if len(p) == 0 {
		return 0, nil
	}
	return recv(h, p)
}

// Close releases h. Closing InvalidHandle is always a no-op.
func (s *Subsystem) Close(h api.Handle) error {
	if !h.Valid() {
		return nil
	}
	if err := s.check(); err != nil {
		return err
	}
	return closeHandle(h)
}

// LocalAddress reports the address h is bound to, e.g. after binding port 0.
func (s *Subsystem) LocalAddress(h api.Handle) (api.Address, error) {
	if err := s.check(); err != nil {
		return api.Address{}, err
	}
	if !h.Valid() {
		return api.Address{}, api.NewError(api.ErrCodeInvalidArgument, "local address of invalid handle")
	}
	return localAddress(h)
}
