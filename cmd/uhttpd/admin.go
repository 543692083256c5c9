// File: cmd/uhttpd/admin.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/momentics/uhttp/control"
)

// adminRouter serves metrics, liveness and debug probes.
func adminRouter(reg *prometheus.Registry, probes *control.DebugProbes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Method(http.MethodGet, "/debug/probes", probes)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if listening, _ := probes.DumpState()["server.listening"].(bool); !listening {
			http.Error(w, "not listening", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}
