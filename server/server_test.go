// File: server/server_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Lifecycle and option tests against the scripted fake socket layer.

package server_test

import (
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/momentics/uhttp/api"
	"github.com/momentics/uhttp/control"
	"github.com/momentics/uhttp/fake"
	"github.com/momentics/uhttp/server"
)

type reported struct {
	code api.ErrorCode
	desc string
}

// recorder collects error callback invocations.
type recorder struct {
	got []reported
}

func (r *recorder) fn(code api.ErrorCode, desc string) {
	r.got = append(r.got, reported{code: code, desc: desc})
}

func (r *recorder) count(code api.ErrorCode) int {
	n := 0
	for _, e := range r.got {
		if e.code == code {
			n++
		}
	}
	return n
}

func newServer(t *testing.T, opts ...server.Option) (*server.Server, *fake.Sockets, *recorder) {
	t.Helper()
	fs := fake.NewSockets()
	srv, err := server.New(fs, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	rec := &recorder{}
	if err := srv.SetOption(api.OptionErrorFunc, api.ErrorCallback(rec.fn)); err != nil {
		t.Fatalf("set error func: %v", err)
	}
	return srv, fs, rec
}

func startServer(t *testing.T, opts ...server.Option) (*server.Server, *fake.Sockets, *recorder) {
	t.Helper()
	srv, fs, rec := newServer(t, opts...)
	if err := srv.SetOption(api.OptionBindAddr, api.BindAddr(api.IPv4(127, 0, 0, 1, 8080))); err != nil {
		t.Fatalf("set bind addr: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })
	return srv, fs, rec
}

func TestNew_NilSockets(t *testing.T) {
	if _, err := server.New(nil); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	srv, err := server.New(fake.NewSockets())
	if err != nil {
		t.Fatal(err)
	}
	v, err := srv.GetOption(api.OptionBacklog)
	if err != nil || v != api.Backlog(16) {
		t.Errorf("expected default backlog 16, got %v (%v)", v, err)
	}
	v, _ = srv.GetOption(api.OptionBindAddr)
	if addr := api.Address(v.(api.BindAddr)); !addr.IsZero() {
		t.Errorf("expected no bind address, got %s", addr)
	}
	v, _ = srv.GetOption(api.OptionErrorFunc)
	if v.(api.ErrorCallback) != nil {
		t.Error("expected default error callback to read back as nil")
	}
	if srv.ListenHandle().Valid() {
		t.Error("listening handle must be invalid before Start")
	}
	if srv.Len() != 0 {
		t.Errorf("expected empty table, got %d", srv.Len())
	}
}

func TestSetOption_Backlog(t *testing.T) {
	srv, _, rec := newServer(t)

	if err := srv.SetOption(api.OptionBacklog, api.Backlog(64)); err != nil {
		t.Fatal(err)
	}
	if v, _ := srv.GetOption(api.OptionBacklog); v != api.Backlog(64) {
		t.Errorf("expected 64, got %v", v)
	}
	if err := srv.SetOption(api.OptionBacklog, api.Backlog(0)); err != nil {
		t.Fatal(err)
	}
	if v, _ := srv.GetOption(api.OptionBacklog); v != api.Backlog(server.DefaultBacklog) {
		t.Errorf("zero backlog must reset to default, got %v", v)
	}
	if err := srv.SetOption(api.OptionBacklog, api.Backlog(-1)); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("expected invalid argument for negative backlog, got %v", err)
	}
	if v, _ := srv.GetOption(api.OptionBacklog); v != api.Backlog(server.DefaultBacklog) {
		t.Errorf("rejected backlog mutated configuration: %v", v)
	}
	if rec.count(api.ErrCodeInvalidArgument) != 1 {
		t.Errorf("expected one reported invalid argument, got %+v", rec.got)
	}
}

func TestSetOption_MismatchedValue(t *testing.T) {
	srv, _, rec := newServer(t)
	err := srv.SetOption(api.OptionBacklog, api.BindAddr(api.IPv4(127, 0, 0, 1, 80)))
	if !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if err := srv.SetOption(api.OptionBindAddr, nil); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("expected invalid argument for nil value, got %v", err)
	}
	if len(rec.got) != 2 {
		t.Errorf("expected two callback invocations, got %d", len(rec.got))
	}
}

func TestOption_UnknownName(t *testing.T) {
	srv, _, rec := newServer(t)
	unknown := api.OptionName(99)
	if err := srv.SetOption(unknown, api.Backlog(1)); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("SetOption: expected invalid argument, got %v", err)
	}
	if _, err := srv.GetOption(unknown); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("GetOption: expected invalid argument, got %v", err)
	}
	if rec.count(api.ErrCodeInvalidArgument) != 2 {
		t.Errorf("unknown option names must invoke the error callback: %+v", rec.got)
	}
}

func TestSetOption_NilErrorCallbackRestoresDefault(t *testing.T) {
	srv, _, rec := newServer(t)
	if err := srv.SetOption(api.OptionErrorFunc, api.ErrorCallback(nil)); err != nil {
		t.Fatal(err)
	}
	if v, _ := srv.GetOption(api.OptionErrorFunc); v.(api.ErrorCallback) != nil {
		t.Error("expected default callback")
	}
	_ = srv.SetOption(api.OptionName(42), api.Backlog(1))
	if len(rec.got) != 0 {
		t.Errorf("replaced callback still invoked: %+v", rec.got)
	}
}

func TestStart_NoBindAddress(t *testing.T) {
	srv, fs, _ := newServer(t)
	err := srv.Start()
	if !errors.Is(err, api.ErrSocket) {
		t.Fatalf("expected platform socket error, got %v", err)
	}
	if srv.ListenHandle().Valid() {
		t.Error("listening handle must stay invalid")
	}
	if srv.Started() {
		t.Error("server must not be started")
	}
	if fs.OpenCount() != 0 {
		t.Errorf("leaked %d handles", fs.OpenCount())
	}
}

func TestStart_FailureAfterCreateClosesSocket(t *testing.T) {
	cases := map[string]func(*fake.Sockets, error){
		"listen":      (*fake.Sockets).FailListen,
		"nonblocking": (*fake.Sockets).FailNonblocking,
	}
	for name, inject := range cases {
		t.Run(name, func(t *testing.T) {
			srv, fs, _ := newServer(t)
			_ = srv.SetOption(api.OptionBindAddr, api.BindAddr(api.IPv4(127, 0, 0, 1, 8080)))
			cause := errors.New("injected " + name)
			inject(fs, cause)

			err := srv.Start()
			if !errors.Is(err, api.ErrSocket) || !errors.Is(err, cause) {
				t.Fatalf("expected socket error wrapping cause, got %v", err)
			}
			if len(fs.Closed()) != 1 || fs.OpenCount() != 0 {
				t.Errorf("created socket not released: closed=%v open=%d", fs.Closed(), fs.OpenCount())
			}
			if srv.ListenHandle().Valid() {
				t.Error("listening handle must stay invalid")
			}
		})
	}
}

func TestStart_ConfiguresListener(t *testing.T) {
	srv, fs, _ := startServer(t)
	h := srv.ListenHandle()
	if !h.Valid() {
		t.Fatal("expected valid listening handle")
	}
	if fs.Backlog(h) != server.DefaultBacklog {
		t.Errorf("expected backlog %d, got %d", server.DefaultBacklog, fs.Backlog(h))
	}
	if !fs.IsNonblocking(h) {
		t.Error("listener must be non-blocking")
	}
	if err := srv.Start(); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("second Start: expected invalid argument, got %v", err)
	}
}

func TestStop_ClosesListenerThenConnectionsInOrder(t *testing.T) {
	srv, fs, _ := startServer(t)
	ln := srv.ListenHandle()
	var want []api.Handle
	want = append(want, ln)
	for i := 0; i < 3; i++ {
		want = append(want, fs.Connect(api.IPv4(10, 0, 0, byte(i+1), 5000)))
	}
	if err := srv.Poll(); err != nil {
		t.Fatal(err)
	}
	conns := srv.Conns()

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	got := fs.Closed()
	if len(got) != len(want) {
		t.Fatalf("closed %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("close #%d: got %s, want %s", i, got[i], want[i])
		}
	}
	if srv.Len() != 0 || srv.ListenHandle().Valid() || fs.OpenCount() != 0 {
		t.Errorf("stop left len=%d listen=%s open=%d", srv.Len(), srv.ListenHandle(), fs.OpenCount())
	}
	for _, c := range conns {
		if !c.Closed() {
			t.Errorf("connection %v still open", c.Peer())
		}
	}
	if err := srv.Stop(); err != nil {
		t.Errorf("second Stop() error: %v", err)
	}
}

func TestStop_AllowsRestart(t *testing.T) {
	srv, fs, _ := startServer(t)
	_ = srv.Stop()
	if err := srv.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	fs.Connect(api.IPv4(10, 0, 0, 1, 1))
	if err := srv.Poll(); err != nil || srv.Len() != 1 {
		t.Errorf("poll after restart: len=%d err=%v", srv.Len(), err)
	}
}

func TestDestroy(t *testing.T) {
	srv, fs, _ := startServer(t)
	fs.Connect(api.IPv4(10, 0, 0, 1, 1))
	_ = srv.Poll()

	if err := srv.Destroy(); err != nil {
		t.Fatalf("Destroy() error: %v", err)
	}
	if fs.OpenCount() != 0 {
		t.Errorf("destroy leaked %d handles", fs.OpenCount())
	}
	for name, call := range map[string]func() error{
		"Destroy": srv.Destroy,
		"Start":   srv.Start,
		"Poll":    srv.Poll,
		"Stop":    srv.Stop,
	} {
		if err := call(); !errors.Is(err, api.ErrInvalidArgument) {
			t.Errorf("%s after Destroy: expected invalid argument, got %v", name, err)
		}
	}
}

func TestDefaultErrorCallback_Logs(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	srv, err := server.New(fake.NewSockets(), server.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	_ = srv.SetOption(api.OptionName(7), api.Backlog(1))
	out := buf.String()
	if !strings.Contains(out, "code=invalid_argument") {
		t.Errorf("expected diagnostic in log, got %q", out)
	}
}

func TestProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	srv, fs, _ := startServer(t, server.WithProbes(dp))
	fs.Connect(api.IPv4(10, 0, 0, 1, 1))
	_ = srv.Poll()

	state := dp.DumpState()
	if state["server.connections"] != int64(1) {
		t.Errorf("connections probe = %v", state["server.connections"])
	}
	if state["server.listening"] != true {
		t.Errorf("listening probe = %v", state["server.listening"])
	}
	if state["server.listen_addr"] != "127.0.0.1:8080" {
		t.Errorf("listen_addr probe = %v", state["server.listen_addr"])
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := control.NewMetrics(control.MetricsConfig{Registry: reg})
	srv, fs, _ := startServer(t, server.WithMetrics(m))

	a := fs.Connect(api.IPv4(10, 0, 0, 1, 1))
	fs.Connect(api.IPv4(10, 0, 0, 2, 1))
	_ = srv.Poll()
	fs.Hangup(a)
	_ = srv.Poll()

	const want = `
# HELP uhttp_reactor_connections_accepted_total Total number of inbound connections added to the table
# TYPE uhttp_reactor_connections_accepted_total counter
uhttp_reactor_connections_accepted_total 2
# HELP uhttp_reactor_connections_active Number of connections in the connection table
# TYPE uhttp_reactor_connections_active gauge
uhttp_reactor_connections_active 1
# HELP uhttp_reactor_connections_closed_total Total number of connections removed from the table
# TYPE uhttp_reactor_connections_closed_total counter
uhttp_reactor_connections_closed_total{reason="hangup"} 1
# HELP uhttp_reactor_passes_total Total number of reactor passes
# TYPE uhttp_reactor_passes_total counter
uhttp_reactor_passes_total 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want),
		"uhttp_reactor_connections_accepted_total",
		"uhttp_reactor_connections_active",
		"uhttp_reactor_connections_closed_total",
		"uhttp_reactor_passes_total",
	); err != nil {
		t.Error(err)
	}
}
