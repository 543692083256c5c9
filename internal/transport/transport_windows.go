//go:build windows
// +build windows

// Package transport
// Author: momentics <momentics@gmail.com>
//
// Winsock backend. WSAStartup/WSACleanup scope the process lifetime; the
// calls that golang.org/x/sys/windows does not wrap are bound lazily from
// ws2_32.dll.

package transport

import (
	"errors"
	"io"
	"syscall"
	"unsafe"

	"github.com/momentics/uhttp/api"
	"golang.org/x/sys/windows"
)

const backendName = "winsock"

const (
	fionbio     = 0x8004667e
	msgPeek     = 0x2
	socketError = -1 // SOCKET_ERROR

	pollRdNorm = 0x0100
	pollRdBand = 0x0200
	pollIn     = pollRdNorm | pollRdBand
	pollErr    = 0x0001
	pollHup    = 0x0002
	pollNval   = 0x0004

	wsaEWouldBlock  = syscall.Errno(10035)
	wsaEConnReset   = syscall.Errno(10054)
	wsaEInval       = syscall.Errno(10022)
	wsaEAfNoSupport = syscall.Errno(10047)
)

var (
	modws2_32       = windows.NewLazySystemDLL("ws2_32.dll")
	procAccept      = modws2_32.NewProc("accept")
	procIoctlsocket = modws2_32.NewProc("ioctlsocket")
	procWSAPoll     = modws2_32.NewProc("WSAPoll")
	procRecv        = modws2_32.NewProc("recv")
	procSend        = modws2_32.NewProc("send")
)

// ret narrows an int-returning Winsock result; only the low 32 bits are defined.
func ret(r1 uintptr) int32 { return int32(r1) }

// wsaPollFD mirrors WSAPOLLFD.
type wsaPollFD struct {
	fd      windows.Handle
	events  int16
	revents int16
}

func startup() error {
	var data windows.WSAData
	return windows.WSAStartup(uint32(0x0202), &data)
}

func cleanup() error {
	return windows.WSACleanup()
}

func createBound(addr api.Address) (api.Handle, error) {
	var sa windows.Sockaddr
	switch addr.Family {
	case api.FamilyInet4:
		sa = &windows.SockaddrInet4{Port: int(addr.Port), Addr: [4]byte(addr.Bytes[:4])}
	case api.FamilyInet6:
		return api.InvalidHandle, api.WrapError(api.ErrCodeNotSupported, "inet6 sockets", wsaEAfNoSupport)
	default:
		return api.InvalidHandle, api.WrapError(api.ErrCodeInvalidArgument, "address family not set", wsaEInval)
	}
	s, err := windows.Socket(windows.AF_INET, windows.SOCK_STREAM, windows.IPPROTO_TCP)
	if err != nil {
		return api.InvalidHandle, api.WrapError(api.ErrCodeSocket, "socket create", err)
	}
	if err := windows.SetsockoptInt(s, windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
		_ = windows.Closesocket(s)
		return api.InvalidHandle, api.WrapError(api.ErrCodeSocket, "setsockopt SO_REUSEADDR", err)
	}
	if err := windows.Bind(s, sa); err != nil {
		_ = windows.Closesocket(s)
		return api.InvalidHandle, api.WrapError(api.ErrCodeSocket, "bind", err).WithContext("addr", addr.String())
	}
	return api.Handle(s), nil
}

func listen(h api.Handle, backlog int) error {
	if err := windows.Listen(windows.Handle(h), backlog); err != nil {
		return api.WrapError(api.ErrCodeSocket, "listen", err).WithContext("backlog", backlog)
	}
	return nil
}

func setNonblocking(h api.Handle, on bool) error {
	var flag uint32
	if on {
		flag = 1
	}
	r1, _, e1 := procIoctlsocket.Call(uintptr(h), uintptr(fionbio), uintptr(unsafe.Pointer(&flag)))
	if ret(r1) == socketError {
		return api.WrapError(api.ErrCodeSocket, "ioctlsocket FIONBIO", e1)
	}
	return nil
}

func accept(h api.Handle) (api.Handle, api.Address, error) {
	var rsa windows.RawSockaddrAny
	l := int32(unsafe.Sizeof(rsa))
	r1, _, e1 := procAccept.Call(uintptr(h), uintptr(unsafe.Pointer(&rsa)), uintptr(unsafe.Pointer(&l)))
	if windows.Handle(r1) == windows.InvalidHandle {
		if errors.Is(e1, wsaEWouldBlock) {
			return api.InvalidHandle, api.Address{}, nil
		}
		return api.InvalidHandle, api.Address{}, api.WrapError(api.ErrCodeSocket, "accept", e1)
	}
	return api.Handle(r1), fromRaw(&rsa), nil
}

func fromRaw(rsa *windows.RawSockaddrAny) api.Address {
	switch rsa.Addr.Family {
	case windows.AF_INET:
		pp := (*windows.RawSockaddrInet4)(unsafe.Pointer(rsa))
		p := (*[2]byte)(unsafe.Pointer(&pp.Port))
		return api.Address{
			Family: api.FamilyInet4,
			Port:   uint16(p[0])<<8 | uint16(p[1]),
			Bytes:  [16]byte{pp.Addr[0], pp.Addr[1], pp.Addr[2], pp.Addr[3]},
		}
	case windows.AF_INET6:
		pp := (*windows.RawSockaddrInet6)(unsafe.Pointer(rsa))
		p := (*[2]byte)(unsafe.Pointer(&pp.Port))
		return api.Address{Family: api.FamilyInet6, Port: uint16(p[0])<<8 | uint16(p[1]), Bytes: pp.Addr}
	default:
		return api.Address{}
	}
}

func poll(h api.Handle) (api.Events, error) {
	fd := wsaPollFD{fd: windows.Handle(h), events: pollRdNorm}
	r1, _, e1 := procWSAPoll.Call(uintptr(unsafe.Pointer(&fd)), 1, 0)
	if ret(r1) == socketError {
		return 0, api.WrapError(api.ErrCodeSocket, "WSAPoll", e1)
	}
	if ret(r1) == 0 {
		return 0, nil
	}
	var ev api.Events
	if fd.revents&pollHup != 0 {
		ev |= api.EventHangup
	}
	if fd.revents&pollErr != 0 {
		ev |= api.EventError
	}
	if fd.revents&pollNval != 0 {
		ev |= api.EventInvalid
	}
	if fd.revents&pollIn != 0 {
		ev |= api.EventReceive
	}
	return confirmReadable(h, ev), nil
}

// confirmReadable reports a graceful peer shutdown as EventHangup so that
// the bitmap matches the unix backend.
func confirmReadable(h api.Handle, ev api.Events) api.Events {
	if ev&api.EventReceive == 0 || ev&api.EventHangup != 0 {
		return ev
	}
	var b [1]byte
	r1, _, e1 := procRecv.Call(uintptr(h), uintptr(unsafe.Pointer(&b[0])), 1, msgPeek)
	switch {
	case ret(r1) == 0:
		ev = ev&^api.EventReceive | api.EventHangup
	case ret(r1) == socketError && errors.Is(e1, wsaEConnReset):
		ev = ev&^api.EventReceive | api.EventHangup | api.EventError
	}
	return ev
}

func send(h api.Handle, p []byte) (int, error) {
	r1, _, e1 := procSend.Call(uintptr(h), uintptr(unsafe.Pointer(&p[0])), uintptr(len(p)), 0)
	if ret(r1) == socketError {
		if errors.Is(e1, wsaEWouldBlock) {
			return 0, api.ErrWouldBlock
		}
		return 0, api.WrapError(api.ErrCodeSocket, "send", e1)
	}
	return int(ret(r1)), nil
}

func recv(h api.Handle, p []byte) (int, error) {
	r1, _, e1 := procRecv.Call(uintptr(h), uintptr(unsafe.Pointer(&p[0])), uintptr(len(p)), 0)
	switch {
	case ret(r1) == socketError && errors.Is(e1, wsaEWouldBlock):
		return 0, api.ErrWouldBlock
	case ret(r1) == socketError:
		return 0, api.WrapError(api.ErrCodeSocket, "recv", e1)
	case ret(r1) == 0:
		return 0, io.EOF
	default:
		return int(ret(r1)), nil
	}
}

func closeHandle(h api.Handle) error {
	if err := windows.Closesocket(windows.Handle(h)); err != nil {
		return api.WrapError(api.ErrCodeSocket, "closesocket", err).WithContext("handle", h.String())
	}
	return nil
}

func localAddress(h api.Handle) (api.Address, error) {
	sa, err := windows.Getsockname(windows.Handle(h))
	if err != nil {
		return api.Address{}, api.WrapError(api.ErrCodeSocket, "getsockname", err)
	}
	switch a := sa.(type) {
	case *windows.SockaddrInet4:
		return api.Address{Family: api.FamilyInet4, Port: uint16(a.Port), Bytes: [16]byte{a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3]}}, nil
	case *windows.SockaddrInet6:
		return api.Address{Family: api.FamilyInet6, Port: uint16(a.Port), Bytes: a.Addr}, nil
	default:
		return api.Address{}, nil
	}
}
