package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors the server exports on /metrics.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	OpsTotal  *prometheus.CounterVec
	OpsDenied *prometheus.CounterVec

	SessionsActive prometheus.Gauge
	WSConnections  prometheus.Gauge

	TreeGeneration prometheus.Gauge
	NodesTotal     prometheus.Gauge

	startTime time.Time
	Uptime    prometheus.Gauge
}

// NewMetrics registers the collectors on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskfs_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskfs_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		OpsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskfs_fs_operations_total",
				Help: "Filesystem operations by kind",
			},
			[]string{"op"},
		),
		OpsDenied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskfs_fs_operations_denied_total",
				Help: "Filesystem operations refused by the permission engine",
			},
			[]string{"op"},
		),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "deskfs_sessions_active",
			Help: "Open desktop sessions",
		}),
		WSConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "deskfs_ws_connections",
			Help: "Connected websocket event subscribers",
		}),
		TreeGeneration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "deskfs_tree_generation",
			Help: "Copy-on-write generation counter of the live tree",
		}),
		NodesTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "deskfs_tree_nodes",
			Help: "Nodes in the live tree",
		}),
		Uptime: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "deskfs_uptime_seconds",
			Help: "Seconds since the server started",
		}),
	}
}

// TickUptime refreshes the uptime gauge. Called from the request middleware
// so the value stays current without a background ticker.
func (m *Metrics) TickUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}
