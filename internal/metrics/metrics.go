// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingest results.
const (
	ResultStored   = "stored"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Metrics holds the collectors, registered on their own registry.
//
// Metrics:
//   - snowclaw_memory_ingested_total{result} - claims offered to the cache
//   - snowclaw_memory_evicted_total - claims removed by TTL eviction
//   - snowclaw_memory_searches_total{backend} - searches served
//   - snowclaw_memory_claims - claims currently indexed
type Metrics struct {
	Registry *prometheus.Registry

	IngestedTotal *prometheus.CounterVec
	EvictedTotal  prometheus.Counter
	SearchesTotal *prometheus.CounterVec
	Claims        prometheus.Gauge
}

// New creates the collectors on a fresh registry, with Go runtime and
// process collectors alongside.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		IngestedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snowclaw_memory_ingested_total",
				Help: "Total number of claims offered for caching, by result",
			},
			[]string{"result"},
		),
		EvictedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "snowclaw_memory_evicted_total",
			Help: "Total number of claims removed by TTL eviction",
		}),
		SearchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snowclaw_memory_searches_total",
				Help: "Total number of searches served, by backend",
			},
			[]string{"backend"},
		),
		Claims: f.NewGauge(prometheus.GaugeOpts{
			Name: "snowclaw_memory_claims",
			Help: "Number of claims currently indexed",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
