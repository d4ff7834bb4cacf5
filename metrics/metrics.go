// Package metrics records call outcomes and latency for both endpoints.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the bridge's Prometheus collectors.
type Collector struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

// NewCollector creates the collectors and registers them with reg. A nil reg
// registers with prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crossplay",
				Subsystem: "call",
				Name:      "total",
				Help:      "Round trips by endpoint, method and outcome.",
			},
			[]string{"endpoint", "method", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "crossplay",
				Subsystem: "call",
				Name:      "duration_seconds",
				Help:      "Round trip duration in seconds.",
				Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"endpoint", "method"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "crossplay",
				Subsystem: "call",
				Name:      "in_flight",
				Help:      "Round trips currently in progress.",
			},
			[]string{"endpoint"},
		),
	}
	for _, col := range []prometheus.Collector{c.calls, c.duration, c.inFlight} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Begin marks a call as in flight and returns the func that records its end.
func (c *Collector) Begin(endpoint, method string) func(outcome string) {
	start := time.Now()
	c.inFlight.WithLabelValues(endpoint).Inc()
	return func(outcome string) {
		c.inFlight.WithLabelValues(endpoint).Dec()
		c.calls.WithLabelValues(endpoint, method, outcome).Inc()
		c.duration.WithLabelValues(endpoint, method).Observe(time.Since(start).Seconds())
	}
}

// Calls exposes the outcome counter, for tests and custom exporters.
func (c *Collector) Calls() *prometheus.CounterVec {
	return c.calls
}
