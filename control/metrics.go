// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Reactor metrics exported through Prometheus.
// A nil *Metrics is valid and records nothing.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/momentics/uhttp/api"
)

// MetricsConfig tunes metric naming and registration.
type MetricsConfig struct {
	Namespace string
	Subsystem string
	Registry  prometheus.Registerer
}

// Metrics holds the reactor collectors.
type Metrics struct {
	active   prometheus.Gauge
	accepted prometheus.Counter
	closed   *prometheus.CounterVec
	passes   prometheus.Counter
	errors   *prometheus.CounterVec
}

// NewMetrics registers the reactor collectors with cfg.Registry
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(cfg MetricsConfig) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "uhttp"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "reactor"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "connections_active",
			Help:      "Number of connections in the connection table",
		}),
		accepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "connections_accepted_total",
			Help:      "Total number of inbound connections added to the table",
		}),
		closed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "connections_closed_total",
			Help:      "Total number of connections removed from the table",
		}, []string{"reason"}),
		passes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "passes_total",
			Help:      "Total number of reactor passes",
		}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "errors_total",
			Help:      "Errors reported through the server error callback",
		}, []string{"code"}),
	}
}

// SetActive records the current table length.
func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.active.Set(float64(n))
}

// Accepted counts one connection added to the table.
func (m *Metrics) Accepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
}

// Closed counts one connection removed for reason.
func (m *Metrics) Closed(reason string) {
	if m == nil {
		return
	}
	m.closed.WithLabelValues(reason).Inc()
}

// Pass counts one reactor pass.
func (m *Metrics) Pass() {
	if m == nil {
		return
	}
	m.passes.Inc()
}

// Error counts one reported error.
func (m *Metrics) Error(code api.ErrorCode) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(code.String()).Inc()
}
