// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Platform-normalized socket primitive contract consumed by the reactor.
// Every backend must present identical observable semantics: the same
// readiness bit meanings, the same non-blocking effect, the same sentinel.

package api

// Sockets is the socket primitive layer.
type Sockets interface {
	// CreateBound allocates a stream socket for addr.Family and binds it.
	// Returns InvalidHandle and an error on failure.
	CreateBound(addr Address) (Handle, error)

	// Listen marks the socket passive with the given queue depth.
	Listen(h Handle, backlog int) error

	// SetNonblocking toggles non-blocking mode.
	SetNonblocking(h Handle, on bool) error

	// Accept dequeues one pending connection without blocking.
	// Returns (InvalidHandle, Address{}, nil) when nothing is pending.
	Accept(h Handle) (Handle, Address, error)

	// Poll performs a zero-timeout readiness check.
	Poll(h Handle) (Events, error)

	// Send writes p without blocking; ErrWouldBlock if nothing could be queued.
	Send(h Handle, p []byte) (int, error)

	// Recv reads into p without blocking; io.EOF on orderly shutdown,
	// ErrWouldBlock when nothing is buffered.
	Recv(h Handle, p []byte) (int, error)

	// Close releases the handle. Closing InvalidHandle is a no-op.
	Close(h Handle) error
}
