// Package metrics exposes server counters and gauges in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "turing"

// Collector holds all Prometheus metrics of one server. A nil *Collector is valid
// and records nothing.
type Collector struct {
	registry *prometheus.Registry

	Requests            *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	ActiveConnections   prometheus.Gauge
	RejectedConnections prometheus.Counter
	InvitesDelivered    prometheus.Counter
	InvitesDropped      prometheus.Counter
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of protocol requests by type and result code",
			},
			[]string{"type", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Protocol request handling duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		ActiveConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connections_active",
				Help:      "Number of open client connections",
			},
		),
		RejectedConnections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_rejected_total",
				Help:      "Total number of connections rejected at the connection limit",
			},
		),
		InvitesDelivered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invites_delivered_total",
				Help:      "Total number of invite notifications delivered",
			},
		),
		InvitesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invites_dropped_total",
				Help:      "Total number of invite notifications dropped on delivery failure",
			},
		),
	}

	registry.MustRegister(
		c.Requests,
		c.RequestDuration,
		c.ActiveConnections,
		c.RejectedConnections,
		c.InvitesDelivered,
		c.InvitesDropped,
		collectors.NewGoCollector(),
	)
	return c
}

// StateSource reports the sizes of the shared server state.
type StateSource interface {
	SessionCount() int
	UserCount() int
	LockedSections() int
}

// PoolSource reports chat address usage.
type PoolSource interface {
	InUse() int
}

// RegisterState adds gauges that are read from the state on every scrape.
func (c *Collector) RegisterState(namespace string, st StateSource, pool PoolSource) {
	if c == nil {
		return
	}
	gauge := func(name, help string, fn func() int) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
			func() float64 { return float64(fn()) },
		)
	}
	c.registry.MustRegister(
		gauge("sessions", "Number of open sessions", st.SessionCount),
		gauge("users", "Number of registered users", st.UserCount),
		gauge("locked_sections", "Number of sections currently locked for editing", st.LockedSections),
		gauge("chat_addresses_in_use", "Number of reserved chat addresses", pool.InUse),
	)
}

// ObserveRequest records one handled request.
func (c *Collector) ObserveRequest(msgType, code string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Requests.WithLabelValues(msgType, code).Inc()
	c.RequestDuration.WithLabelValues(msgType).Observe(elapsed.Seconds())
}

// ConnectionOpened increments the active connection gauge.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.ActiveConnections.Inc()
}

// ConnectionClosed decrements the active connection gauge.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.ActiveConnections.Dec()
}

// ConnectionRejected counts a connection turned away at the limit.
func (c *Collector) ConnectionRejected() {
	if c == nil {
		return
	}
	c.RejectedConnections.Inc()
}

// InvitesFlushed records the outcome of an inbox flush.
func (c *Collector) InvitesFlushed(delivered, dropped int) {
	if c == nil {
		return
	}
	c.InvitesDelivered.Add(float64(delivered))
	c.InvitesDropped.Add(float64(dropped))
}

// Registry returns the registry holding every metric of this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
