package transport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records request outcomes per entity kind and operation.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates transport collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "canopy",
				Subsystem: "transport",
				Name:      "requests_total",
				Help:      "Total number of transport requests by outcome.",
			},
			[]string{"kind", "op", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "canopy",
				Subsystem: "transport",
				Name:      "request_duration_seconds",
				Help:      "Duration of transport requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
			},
			[]string{"kind", "op"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

// Outcome labels.
const (
	OutcomeOK          = "ok"
	OutcomeNotFound    = "not_found"
	OutcomeError       = "error"
	OutcomeUnsupported = "unsupported"
)

func (m *Metrics) observe(kind, op, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind, op, outcome).Inc()
	m.duration.WithLabelValues(kind, op).Observe(time.Since(start).Seconds())
}

// Requests exposes the request counter, for tests and dashboards.
func (m *Metrics) Requests() *prometheus.CounterVec { return m.requests }
