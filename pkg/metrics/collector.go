// Package metrics exposes run, capability, output event and gate wait
// metrics for the workflow engine. A nil *Collector records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	runs            *prometheus.CounterVec
	capabilityCalls *prometheus.CounterVec
	outputEvents    *prometheus.CounterVec
	gateWait        *prometheus.HistogramVec
}

// NewCollector registers the engine metrics on a fresh registry so that
// several collectors can coexist in one process.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentblocks_runs_total",
				Help: "Total workflow runs by final status",
			},
			[]string{"status"},
		),

		capabilityCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentblocks_capability_calls_total",
				Help: "Total capability client calls by capability and status",
			},
			[]string{"capability", "status"},
		),

		outputEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentblocks_output_events_total",
				Help: "Total output events emitted by kind",
			},
			[]string{"kind"},
		),

		gateWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentblocks_gate_wait_seconds",
				Help:    "Time spent waiting for email authorization by outcome",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
	}
}

// RecordRun counts a finished run. status is "success", "failure" or
// "rejected".
func (c *Collector) RecordRun(status string) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(status).Inc()
}

// RecordCapabilityCall counts one client call. status is "ok" or "error".
func (c *Collector) RecordCapabilityCall(capability, status string) {
	if c == nil {
		return
	}
	c.capabilityCalls.WithLabelValues(capability, status).Inc()
}

func (c *Collector) RecordOutputEvent(kind string) {
	if c == nil {
		return
	}
	c.outputEvents.WithLabelValues(kind).Inc()
}

func (c *Collector) ObserveGateWait(outcome string, seconds float64) {
	if c == nil {
		return
	}
	c.gateWait.WithLabelValues(outcome).Observe(seconds)
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
