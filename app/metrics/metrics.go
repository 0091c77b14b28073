// Package metrics holds the Prometheus instruments for payment flows and batch jobs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	RedirectCallbacks  *prometheus.CounterVec
	RemoteCallDuration *prometheus.HistogramVec
	BatchLines         *prometheus.CounterVec
	BatchResults       *prometheus.CounterVec
}

// New builds a set of instruments on a private registry, so several instances can coexist in tests.
func New(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		registry: registry,
		RedirectCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "paygate_redirect_callbacks_total",
			Help:        "PayHost redirect callbacks by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		RemoteCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "paygate_remote_call_duration_seconds",
			Help:        "Duration of PayHost and PayBatch calls.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"operation", "result"}),
		BatchLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "paybatch_lines_total",
			Help:        "PayBatch lines by submission stage.",
			ConstLabels: labels,
		}, []string{"stage"}),
		BatchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "paybatch_results_total",
			Help:        "PayBatch transaction results applied to orders.",
			ConstLabels: labels,
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		m.RedirectCallbacks,
		m.RemoteCallDuration,
		m.BatchLines,
		m.BatchResults,
		collectors.NewGoCollector(),
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Callback(outcome string) {
	if m == nil {
		return
	}
	m.RedirectCallbacks.WithLabelValues(outcome).Inc()
}

// ObserveCall records the latency of a remote call started at start.
func (m *Metrics) ObserveCall(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RemoteCallDuration.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Lines(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BatchLines.WithLabelValues(stage).Add(float64(n))
}

func (m *Metrics) Result(outcome string) {
	if m == nil {
		return
	}
	m.BatchResults.WithLabelValues(outcome).Inc()
}
