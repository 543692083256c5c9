//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

// internal/transport/transport_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// BSD-socket backend built on golang.org/x/sys/unix.

package transport

import (
	"errors"
	"io"

	"github.com/momentics/uhttp/api"
	"golang.org/x/sys/unix"
)

const backendName = "unix"

func startup() error { return nil }
func cleanup() error { return nil }

func sockaddr(addr api.Address) (unix.Sockaddr, error) {
	switch addr.Family {
	case api.FamilyInet4:
		return &unix.SockaddrInet4{Port: int(addr.Port), Addr: [4]byte(addr.Bytes[:4])}, nil
	case api.FamilyInet6:
		return nil, api.WrapError(api.ErrCodeNotSupported, "inet6 sockets", unix.EAFNOSUPPORT)
	default:
		return nil, api.WrapError(api.ErrCodeInvalidArgument, "address family not set", unix.EINVAL)
	}
}

func fromSockaddr(sa unix.Sockaddr) api.Address {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return api.Address{Family: api.FamilyInet4, Port: uint16(a.Port), Bytes: [16]byte{a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3]}}
	case *unix.SockaddrInet6:
		return api.Address{Family: api.FamilyInet6, Port: uint16(a.Port), Bytes: a.Addr}
	default:
		return api.Address{}
	}
}

func createBound(addr api.Address) (api.Handle, error) {
	sa, err := sockaddr(addr)
	if err != nil {
		return api.InvalidHandle, err
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return api.InvalidHandle, api.WrapError(api.ErrCodeSocket, "socket create", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return api.InvalidHandle, api.WrapError(api.ErrCodeSocket, "setsockopt SO_REUSEADDR", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return api.InvalidHandle, api.WrapError(api.ErrCodeSocket, "bind", err).WithContext("addr", addr.String())
	}
	return api.Handle(fd), nil
}

func listen(h api.Handle, backlog int) error {
	if err := unix.Listen(int(h), backlog); err != nil {
		return api.WrapError(api.ErrCodeSocket, "listen", err).WithContext("backlog", backlog)
	}
	return nil
}

func setNonblocking(h api.Handle, on bool) error {
	if err := unix.SetNonblock(int(h), on); err != nil {
		return api.WrapError(api.ErrCodeSocket, "set nonblocking", err)
	}
	return nil
}

func accept(h api.Handle) (api.Handle, api.Address, error) {
	for {
		nfd, sa, err := unix.Accept(int(h))
		switch {
		case err == nil:
			unix.CloseOnExec(nfd)
			return api.Handle(nfd), fromSockaddr(sa), nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.ECONNABORTED):
			return api.InvalidHandle, api.Address{}, nil
		default:
			return api.InvalidHandle, api.Address{}, api.WrapError(api.ErrCodeSocket, "accept", err)
		}
	}
}

func poll(h api.Handle) (api.Events, error) {
	fds := []unix.PollFd{{Fd: int32(h), Events: unix.POLLIN | unix.POLLPRI}}
	for {
		n, err := unix.Poll(fds, 0)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, api.WrapError(api.ErrCodeSocket, "poll", err)
		}
		if n == 0 {
			return 0, nil
		}
		break
	}

	re := fds[0].Revents
	var ev api.Events
	if re&unix.POLLHUP != 0 {
		ev |= api.EventHangup
	}
	if re&unix.POLLERR != 0 {
		ev |= api.EventError
	}
	if re&unix.POLLNVAL != 0 {
		ev |= api.EventInvalid
	}
	if re&(unix.POLLIN|unix.POLLPRI) != 0 {
		ev |= api.EventReceive
	}
	return confirmReadable(h, ev), nil
}

// confirmReadable turns a half-close, which most kernels only report as
// POLLIN, into EventHangup.
func confirmReadable(h api.Handle, ev api.Events) api.Events {
	if ev&api.EventReceive == 0 || ev&api.EventHangup != 0 {
		return ev
	}
	var b [1]byte
	n, _, err := unix.Recvfrom(int(h), b[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
	switch {
	case err == nil && n == 0:
		ev = ev&^api.EventReceive | api.EventHangup
	case errors.Is(err, unix.ECONNRESET):
		ev = ev&^api.EventReceive | api.EventHangup | api.EventError
	}
	return ev
}

func send(h api.Handle, p []byte) (int, error) {
	for {
		n, err := unix.SendmsgN(int(h), p, nil, nil, unix.MSG_DONTWAIT)
		switch {
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK):
			return 0, api.ErrWouldBlock
		default:
			return 0, api.WrapError(api.ErrCodeSocket, "send", err)
		}
	}
}

func recv(h api.Handle, p []byte) (int, error) {
	for {
		n, _, err := unix.Recvfrom(int(h), p, unix.MSG_DONTWAIT)
		switch {
		case err == nil && n == 0:
			return 0, io.EOF
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK):
			return 0, api.ErrWouldBlock
		default:
			return 0, api.WrapError(api.ErrCodeSocket, "recv", err)
		}
	}
}

func closeHandle(h api.Handle) error {
	if err := unix.Close(int(h)); err != nil {
		return api.WrapError(api.ErrCodeSocket, "close", err).WithContext("handle", h.String())
	}
	return nil
}

func localAddress(h api.Handle) (api.Address, error) {
	sa, err := unix.Getsockname(int(h))
	if err != nil {
		return api.Address{}, api.WrapError(api.ErrCodeSocket, "getsockname", err)
	}
	return fromSockaddr(sa), nil
}
