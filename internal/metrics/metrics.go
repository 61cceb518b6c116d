// Package metrics exposes transfer counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relay"

// Byte directions.
const (
	Downloaded = "download"
	Uploaded   = "upload"
)

type Metrics struct {
	registry  *prometheus.Registry
	transfers *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	active    prometheus.Gauge
	duration  prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Finished transfers by outcome.",
		}, []string{"outcome"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes moved by direction.",
		}, []string{"direction"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_transfers",
			Help:      "Transfers currently running.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Wall time of finished transfers.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
	m.registry.MustRegister(
		m.transfers, m.bytes, m.active, m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Started and Finished bracket one transfer. All methods accept a nil
// receiver.
func (m *Metrics) Started() {
	if m == nil {
		return
	}
	m.active.Inc()
}

func (m *Metrics) Finished(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.transfers.WithLabelValues(outcome).Inc()
	m.duration.Observe(seconds)
}

// Rejected counts a request turned away before it started.
func (m *Metrics) Rejected() {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues("rejected").Inc()
}

func (m *Metrics) AddBytes(direction string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytes.WithLabelValues(direction).Add(float64(n))
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
