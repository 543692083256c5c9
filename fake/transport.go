// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the socket primitive layer.

package fake

import (
	"io"
	"sync"

	"github.com/momentics/uhttp/api"
)

type socket struct {
	listening   bool
	nonblocking bool
	peer        api.Address
	events      api.Events
	in          []byte
	out         []byte
	peerClosed  bool
}

type pending struct {
	h    api.Handle
	peer api.Address
}

// Sockets is a scripted, in-memory api.Sockets.
type Sockets struct {
	mu      sync.Mutex
	next    api.Handle
	open    map[api.Handle]*socket
	backlog map[api.Handle]int
	queue   []pending
	closed  []api.Handle

	createErr   error
	listenErr   error
	nonblockErr error
	acceptErr   error
	failNonblk  map[api.Handle]error
	failPoll    map[api.Handle]error
}

var _ api.Sockets = (*Sockets)(nil)

// NewSockets creates a fake socket layer with no open handles.
func NewSockets() *Sockets {
	return &Sockets{
		next:       3,
		open:       make(map[api.Handle]*socket),
		backlog:    make(map[api.Handle]int),
		failNonblk: make(map[api.Handle]error),
		failPoll:   make(map[api.Handle]error),
	}
}

func (s *Sockets) alloc() api.Handle {
	h := s.next
	s.next++
	return h
}

// Connect queues an inbound connection from peer and returns the handle
// Accept will produce for it.
func (s *Sockets) Connect(peer api.Address) api.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.alloc()
	s.queue = append(s.queue, pending{h: h, peer: peer})
	return h
}

// Pending returns the number of queued, not yet accepted connections.
func (s *Sockets) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// SetEvents fixes the readiness bits Poll reports for h.
func (s *Sockets) SetEvents(h api.Handle, ev api.Events) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sk, ok := s.open[h]; ok {
		sk.events = ev
	}
}

// Feed appends inbound bytes for h; Poll reports EventReceive while any remain.
func (s *Sockets) Feed(h api.Handle, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sk, ok := s.open[h]; ok {
		sk.in = append(sk.in, data...)
	}
}

// Hangup simulates the peer closing its end of h.
func (s *Sockets) Hangup(h api.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sk, ok := s.open[h]; ok {
		sk.peerClosed = true
	}
}

// Sent returns a copy of everything written to h.
func (s *Sockets) Sent(h api.Handle) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sk, ok := s.open[h]; ok {
		return append([]byte(nil), sk.out...)
	}
	return nil
}

// FailCreate makes the next CreateBound fail with err.
func (s *Sockets) FailCreate(err error) { s.mu.Lock(); s.createErr = err; s.mu.Unlock() }

// FailListen makes the next Listen fail with err.
func (s *Sockets) FailListen(err error) { s.mu.Lock(); s.listenErr = err; s.mu.Unlock() }

// FailNonblocking makes the next SetNonblocking fail with err.
func (s *Sockets) FailNonblocking(err error) { s.mu.Lock(); s.nonblockErr = err; s.mu.Unlock() }

// FailAccept makes the next Accept fail with err.
func (s *Sockets) FailAccept(err error) { s.mu.Lock(); s.acceptErr = err; s.mu.Unlock() }

// FailNonblockingFor makes SetNonblocking on h fail with err.
func (s *Sockets) FailNonblockingFor(h api.Handle, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNonblk[h] = err
}

// FailPollFor makes every Poll of h fail with err.
func (s *Sockets) FailPollFor(h api.Handle, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPoll[h] = err
}

// IsOpen reports whether h is currently open.
func (s *Sockets) IsOpen(h api.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.open[h]
	return ok
}

// IsNonblocking reports whether h was switched to non-blocking mode.
func (s *Sockets) IsNonblocking(h api.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk, ok := s.open[h]
	return ok && sk.nonblocking
}

// Backlog returns the queue depth h was listened with.
func (s *Sockets) Backlog(h api.Handle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backlog[h]
}

// OpenCount returns the number of open handles.
func (s *Sockets) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}

// Closed returns handles in the order they were closed.
func (s *Sockets) Closed() []api.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.Handle(nil), s.closed...)
}

// CreateBound implements api.Sockets.
func (s *Sockets) CreateBound(addr api.Address) (api.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createErr; err != nil {
		s.createErr = nil
		return api.InvalidHandle, err
	}
	switch addr.Family {
	case api.FamilyInet4:
	case api.FamilyInet6:
		return api.InvalidHandle, api.NewError(api.ErrCodeNotSupported, "inet6 sockets")
	default:
		return api.InvalidHandle, api.NewError(api.ErrCodeInvalidArgument, "address family not set")
	}
	h := s.alloc()
	s.open[h] = &socket{}
	return h, nil
}

// Listen implements api.Sockets.
func (s *Sockets) Listen(h api.Handle, backlog int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.listenErr; err != nil {
		s.listenErr = nil
		return err
	}
	sk, ok := s.open[h]
	if !ok || backlog < 0 {
		return api.NewError(api.ErrCodeSocket, "listen")
	}
	sk.listening = true
	s.backlog[h] = backlog
	return nil
}

// SetNonblocking implements api.Sockets.
func (s *Sockets) SetNonblocking(h api.Handle, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.nonblockErr; err != nil {
		s.nonblockErr = nil
		return err
	}
	if err, ok := s.failNonblk[h]; ok {
		return err
	}
	sk, ok := s.open[h]
	if !ok {
		return api.NewError(api.ErrCodeSocket, "set nonblocking on unknown handle")
	}
	sk.nonblocking = on
	return nil
}

// Accept implements api.Sockets.
func (s *Sockets) Accept(h api.Handle) (api.Handle, api.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acceptErr; err != nil {
		s.acceptErr = nil
		return api.InvalidHandle, api.Address{}, err
	}
	if sk, ok := s.open[h]; !ok || !sk.listening {
		return api.InvalidHandle, api.Address{}, api.NewError(api.ErrCodeSocket, "accept on non-listening handle")
	}
	if len(s.queue) == 0 {
		return api.InvalidHandle, api.Address{}, nil
	}
	p := s.queue[0]
	s.queue = s.queue[1:]
	s.open[p.h] = &socket{peer: p.peer}
	return p.h, p.peer, nil
}

// Poll implements api.Sockets.
func (s *Sockets) Poll(h api.Handle) (api.Events, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failPoll[h]; ok {
		return 0, err
	}
	sk, ok := s.open[h]
	if !ok {
		return api.EventInvalid, nil
	}
	ev := sk.events
	if len(sk.in) > 0 {
		ev |= api.EventReceive
	} else if sk.peerClosed {
		ev |= api.EventHangup
	}
	return ev, nil
}

// Send implements api.Sockets.
func (s *Sockets) Send(h api.Handle, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk, ok := s.open[h]
	if !ok {
		return 0, api.NewError(api.ErrCodeSocket, "send on unknown handle")
	}
	if sk.peerClosed {
		return 0, api.NewError(api.ErrCodeSocket, "broken pipe")
	}
	sk.out = append(sk.out, p...)
	return len(p), nil
}

// Recv implements api.Sockets.
func (s *Sockets) Recv(h api.Handle, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk, ok := s.open[h]
	if !ok {
		return 0, api.NewError(api.ErrCodeSocket, "recv on unknown handle")
	}
	if len(p) == 0 {
		return 0, nil
	}
	if len(sk.in) == 0 {
		if sk.peerClosed {
			return 0, io.EOF
		}
		return 0, api.ErrWouldBlock
	}
	n := copy(p, sk.in)
	sk.in = sk.in[n:]
	return n, nil
}

// Close implements api.Sockets.
func (s *Sockets) Close(h api.Handle) error {
	if !h.Valid() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.open[h]; !ok {
		return api.NewError(api.ErrCodeSocket, "close of unknown handle").WithContext("handle", h.String())
	}
	delete(s.open, h)
	s.closed = append(s.closed, h)
	return nil
}
