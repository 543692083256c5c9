// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations: socket handles, readiness bits and addresses.

package api

import (
	"fmt"
	"net/netip"
	"strings"
)

// Handle is an OS socket descriptor (fd on unix, SOCKET on Windows).
type Handle uintptr

// InvalidHandle is the sentinel distinguishing "no socket" from any real handle.
const InvalidHandle = ^Handle(0)

// Valid reports whether h is not the sentinel.
func (h Handle) Valid() bool { return h != InvalidHandle }

func (h Handle) String() string {
	if h == InvalidHandle {
		return "invalid"
	}
	return fmt.Sprintf("%d", uintptr(h))
}

// Events is the readiness bitmap observed by a zero-timeout poll.
// More than one bit may be set.
type Events uint8

const (
	EventHangup Events = 1 << iota
	EventError
	EventReceive
	EventInvalid
)

// Has reports whether all bits of mask are set.
func (e Events) Has(mask Events) bool { return e&mask == mask && mask != 0 }

func (e Events) String() string {
	if e == 0 {
		return "none"
	}
	var parts []string
	if e&EventHangup != 0 {
		parts = append(parts, "hangup")
	}
	if e&EventError != 0 {
		parts = append(parts, "error")
	}
	if e&EventReceive != 0 {
		parts = append(parts, "receive")
	}
	if e&EventInvalid != 0 {
		parts = append(parts, "invalid")
	}
	return strings.Join(parts, "|")
}

// Family tags the address family of an Address.
type Family uint8

const (
	FamilyUnspec Family = iota
	FamilyInet4
	FamilyInet6
)

func (f Family) String() string {
	switch f {
	case FamilyInet4:
		return "inet4"
	case FamilyInet6:
		return "inet6"
	default:
		return "unspec"
	}
}

// Address is a fixed-size socket address: family, host-order port and raw bytes.
// IPv4 uses Bytes[0:4].
type Address struct {
	Family Family
	Port   uint16
	Bytes  [16]byte
}

// IPv4 builds an inet4 Address.
func IPv4(a, b, c, d byte, port uint16) Address {
	return Address{Family: FamilyInet4, Port: port, Bytes: [16]byte{a, b, c, d}}
}

// AddressFrom converts a netip.AddrPort.
func AddressFrom(ap netip.AddrPort) Address {
	ip := ap.Addr().Unmap()
	switch {
	case ip.Is4():
		v4 := ip.As4()
		return IPv4(v4[0], v4[1], v4[2], v4[3], ap.Port())
	case ip.Is6():
		return Address{Family: FamilyInet6, Port: ap.Port(), Bytes: ip.As16()}
	default:
		return Address{}
	}
}

// ParseAddress parses "host:port" into an Address.
func ParseAddress(s string) (Address, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return Address{}, WrapError(ErrCodeInvalidArgument, "parse address", err).WithContext("addr", s)
	}
	return AddressFrom(ap), nil
}

// AddrPort converts back to netip; the zero AddrPort is returned for FamilyUnspec.
func (a Address) AddrPort() netip.AddrPort {
	switch a.Family {
	case FamilyInet4:
		return netip.AddrPortFrom(netip.AddrFrom4([4]byte(a.Bytes[:4])), a.Port)
	case FamilyInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(a.Bytes), a.Port)
	default:
		return netip.AddrPort{}
	}
}

// IsZero reports whether the address was never set.
func (a Address) IsZero() bool { return a == Address{} }

func (a Address) String() string {
	if a.Family == FamilyUnspec {
		return "<unspec>"
	}
	return a.AddrPort().String()
}
