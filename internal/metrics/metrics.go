// Package metrics holds the prometheus collectors for the poller, chart streams
// and the local API.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "growin"

// Poll cycle results
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics owns every collector, registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	pollCycles       *prometheus.CounterVec
	pollDuration     prometheus.Histogram
	streamMessages   *prometheus.CounterVec
	streamReconnects prometheus.Counter
	httpRequests     *prometheus.CounterVec
}

// New creates the collectors and registers them on registry.
// A nil registry gets a fresh one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		pollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Live portfolio poll cycles by result.",
		}, []string{"result"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of one fetch and aggregate cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		streamMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_messages_total",
			Help:      "Chart socket messages received by type.",
		}, []string{"type"}),
		streamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_reconnects_total",
			Help:      "Chart socket reconnect attempts.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Local API requests by route pattern and status.",
		}, []string{"path", "status"}),
	}

	registry.MustRegister(
		m.pollCycles,
		m.pollDuration,
		m.streamMessages,
		m.streamReconnects,
		m.httpRequests,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePoll records one poll cycle.
func (m *Metrics) ObservePoll(result string, seconds float64) {
	if m == nil {
		return
	}
	m.pollCycles.WithLabelValues(result).Inc()
	m.pollDuration.Observe(seconds)
}

// StreamMessage counts one decoded socket message.
func (m *Metrics) StreamMessage(kind string) {
	if m == nil {
		return
	}
	m.streamMessages.WithLabelValues(kind).Inc()
}

// StreamReconnect counts one reconnect attempt.
func (m *Metrics) StreamReconnect() {
	if m == nil {
		return
	}
	m.streamReconnects.Inc()
}

// HTTPRequest counts one served API request.
func (m *Metrics) HTTPRequest(path string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
}
