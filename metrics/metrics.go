// SPDX-License-Identifier: GPL-3.0-or-later

// Package metrics exports per-packet counters using Prometheus.
//
// Every method of [*Metrics] is safe to call on a nil receiver, so
// components can take an optional [*Metrics] and use it unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// namespace prefixes all the metric names.
const namespace = "shuffler"

// Metrics contains the redirector collectors.
//
// Construct using [New].
type Metrics struct {
	// Received counts the datagrams read from the socket.
	Received prometheus.Counter

	// Malformed counts the datagrams shorter than the header.
	Malformed prometheus.Counter

	// Dropped counts the packets dropped by the policy.
	Dropped prometheus.Counter

	// Forwarded counts the packets successfully forwarded.
	Forwarded prometheus.Counter

	// ForwardedBytes counts the payload bytes successfully forwarded.
	ForwardedBytes prometheus.Counter

	// ForwardErrors counts failed sends by error class.
	ForwardErrors *prometheus.CounterVec

	// Delay observes the scheduled delays.
	Delay prometheus.Histogram

	// Inflight is the number of packets waiting for their delay to expire.
	Inflight prometheus.Gauge

	// gatherer is the registry to expose, if any.
	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. When reg is
// also a [prometheus.Gatherer], [*Metrics.Handler] exposes it.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Total number of datagrams received",
		}),
		Malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_malformed_total",
			Help:      "Total number of datagrams too short to contain the destination",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "Total number of packets intentionally dropped",
		}),
		Forwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_forwarded_total",
			Help:      "Total number of packets forwarded to their destination",
		}),
		ForwardedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forwarded_bytes_total",
			Help:      "Total number of payload bytes forwarded",
		}),
		ForwardErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_errors_total",
			Help:      "Total number of failed forwards by error class",
		}, []string{"err_class"}),
		Delay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduled_delay_seconds",
			Help:      "Delay assigned to forwarded packets",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		Inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "packets_inflight",
			Help:      "Number of packets waiting to be forwarded",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Received,
			m.Malformed,
			m.Dropped,
			m.Forwarded,
			m.ForwardedBytes,
			m.ForwardErrors,
			m.Delay,
			m.Inflight,
		)
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Handler returns the [http.Handler] exposing the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// PacketReceived records a datagram read from the socket.
func (m *Metrics) PacketReceived() {
	if m != nil {
		m.Received.Inc()
	}
}

// PacketMalformed records a datagram that failed decoding.
func (m *Metrics) PacketMalformed() {
	if m != nil {
		m.Malformed.Inc()
	}
}

// PacketDropped records a packet dropped by the policy.
func (m *Metrics) PacketDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

// PacketScheduled records a packet that will be forwarded after delay.
func (m *Metrics) PacketScheduled(delay time.Duration) {
	if m != nil {
		m.Delay.Observe(delay.Seconds())
		m.Inflight.Inc()
	}
}

// PacketForwarded records the outcome of a forward attempt. The
// errClass is empty on success.
func (m *Metrics) PacketForwarded(size int, errClass string) {
	if m == nil {
		return
	}
	m.Inflight.Dec()
	if errClass != "" {
		m.ForwardErrors.WithLabelValues(errClass).Inc()
		return
	}
	m.Forwarded.Inc()
	m.ForwardedBytes.Add(float64(size))
}
