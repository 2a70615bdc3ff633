package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector defines the interface for control-plane metrics collection
type Collector interface {
	ConnectionOpened()
	ConnectionClosed()
	CommandReceived(command string)
	FrameDropped(reason string)
	AuthFailure()
	BroadcastSent(clients int)

	// Handler returns an HTTP handler for the metrics endpoint
	Handler() http.Handler
}

// PrometheusCollector implements the Collector interface using Prometheus
type PrometheusCollector struct {
	registry *prometheus.Registry

	activeConnections prometheus.Gauge
	connectionsTotal  prometheus.Counter
	commandsReceived  *prometheus.CounterVec
	framesDropped     *prometheus.CounterVec
	authFailures      prometheus.Counter
	broadcastsSent    prometheus.Counter
	broadcastFanout   prometheus.Histogram
}

// NewPrometheusCollector creates a new PrometheusCollector backed by its
// own registry, so tests and multiple server instances never collide on
// metric registration.
func NewPrometheusCollector() *PrometheusCollector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &PrometheusCollector{
		registry: registry,

		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "promptdeck_active_connections",
			Help: "Number of active control connections",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "promptdeck_connections_total",
			Help: "Total number of control connections accepted",
		}),

		commandsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptdeck_commands_received_total",
				Help: "Total number of commands dispatched, by command name",
			},
			[]string{"command"},
		),

		framesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptdeck_frames_dropped_total",
				Help: "Total number of inbound frames dropped before dispatch",
			},
			[]string{"reason"},
		),

		authFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "promptdeck_auth_failures_total",
			Help: "Total number of failed or timed-out authentication handshakes",
		}),

		broadcastsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "promptdeck_broadcasts_sent_total",
			Help: "Total number of state broadcasts",
		}),

		broadcastFanout: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "promptdeck_broadcast_fanout",
			Help:    "Number of clients reached per state broadcast",
			Buckets: prometheus.LinearBuckets(0, 2, 9),
		}),
	}
}

// ConnectionOpened records a new control connection
func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsTotal.Inc()
	c.activeConnections.Inc()
}

// ConnectionClosed records a control connection going away
func (c *PrometheusCollector) ConnectionClosed() {
	c.activeConnections.Dec()
}

// CommandReceived records a dispatched command
func (c *PrometheusCollector) CommandReceived(command string) {
	c.commandsReceived.WithLabelValues(command).Inc()
}

// FrameDropped records an inbound frame dropped before dispatch
// (malformed, rate-limited, unauthenticated, invalid)
func (c *PrometheusCollector) FrameDropped(reason string) {
	c.framesDropped.WithLabelValues(reason).Inc()
}

// AuthFailure records a failed or timed-out handshake
func (c *PrometheusCollector) AuthFailure() {
	c.authFailures.Inc()
}

// BroadcastSent records a state broadcast and its fan-out
func (c *PrometheusCollector) BroadcastSent(clients int) {
	c.broadcastsSent.Inc()
	c.broadcastFanout.Observe(float64(clients))
}

// Handler returns an HTTP handler for the metrics endpoint
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// NopCollector discards all metrics.
type NopCollector struct{}

func (NopCollector) ConnectionOpened()      {}
func (NopCollector) ConnectionClosed()      {}
func (NopCollector) CommandReceived(string) {}
func (NopCollector) FrameDropped(string)    {}
func (NopCollector) AuthFailure()           {}
func (NopCollector) BroadcastSent(int)      {}
func (NopCollector) Handler() http.Handler  { return http.NotFoundHandler() }
