package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/momentics/uhttp/api"
	"github.com/momentics/uhttp/control"
	"github.com/momentics/uhttp/fake"
	"github.com/momentics/uhttp/server"
)

func startFake(t *testing.T, opts ...server.Option) (*server.Server, *fake.Sockets) {
	t.Helper()
	fs := fake.NewSockets()
	srv, err := server.New(fs, opts...)
	if err != nil {
		t.Fatal(err)
	}
	cfg := control.DefaultConfig()
	if err := configure(srv, cfg, slog.Default()); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { _ = srv.Destroy() })
	return srv, fs
}

func TestConfigure(t *testing.T) {
	srv, _ := startFake(t)
	v, _ := srv.GetOption(api.OptionBindAddr)
	if api.Address(v.(api.BindAddr)) != api.IPv4(127, 0, 0, 1, 8080) {
		t.Errorf("bind addr %v", v)
	}
	v, _ = srv.GetOption(api.OptionBacklog)
	if v != api.Backlog(server.DefaultBacklog) {
		t.Errorf("backlog %v", v)
	}
	v, _ = srv.GetOption(api.OptionErrorFunc)
	if v.(api.ErrorCallback) == nil {
		t.Error("daemon error callback not installed")
	}
}

func TestRunPasses_StopsOnCancel(t *testing.T) {
	srv, fs := startFake(t)
	fs.Connect(api.IPv4(10, 0, 0, 1, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := runPasses(ctx, srv, rate.NewLimiter(rate.Limit(1000), 1)); err != nil {
		t.Fatalf("runPasses() error: %v", err)
	}
	if srv.Len() != 1 {
		t.Errorf("expected pending connection accepted, len=%d", srv.Len())
	}
}

func TestRunPasses_ServerMisuse(t *testing.T) {
	srv, err := server.New(fake.NewSockets())
	if err != nil {
		t.Fatal(err)
	}
	err = runPasses(context.Background(), srv, rate.NewLimiter(rate.Inf, 1))
	if err == nil {
		t.Error("expected error polling a server that was never started")
	}
}

func TestAdminRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	probes := control.NewDebugProbes()
	h := adminRouter(reg, probes)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("healthz before start: %d", rr.Code)
	}

	startFake(t,
		server.WithMetrics(control.NewMetrics(control.MetricsConfig{Registry: reg})),
		server.WithProbes(probes))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("healthz after start: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "uhttp_reactor_connections_active") {
		t.Errorf("metrics output missing reactor gauge:\n%s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/probes", nil))
	if !strings.Contains(rr.Body.String(), `"server.listening":true`) {
		t.Errorf("probe dump: %s", rr.Body.String())
	}
}
