//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly && !windows

// File: internal/transport/transport_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package transport

import "github.com/momentics/uhttp/api"

const backendName = "unsupported"

var errPlatform = api.NewError(api.ErrCodeNotSupported, "transport: this platform is not supported")

func startup() error { return errPlatform }
func cleanup() error { return nil }

func createBound(api.Address) (api.Handle, error) { return api.InvalidHandle, errPlatform }
func listen(api.Handle, int) error { return errPlatform }
func setNonblocking(api.Handle, bool) error { return errPlatform }
func accept(api.Handle) (api.Handle, api.Address, error) { return api.InvalidHandle, api.Address{}, errPlatform }
func poll(api.Handle) (api.Events, error) { return 0, errPlatform }
func send(api.Handle, []byte) (int, error) { return 0, errPlatform }
func recv(api.Handle, []byte) (int, error) { return 0, errPlatform }
func closeHandle(api.Handle) error { return errPlatform }
func localAddress(api.Handle) (api.Address, error) { return api.Address{}, errPlatform }
