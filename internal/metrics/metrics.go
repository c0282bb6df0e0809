// Package metrics exposes Prometheus counters for publication and query
// outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sdn_trust"

// Metrics holds the node's collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	PeersDiscovered prometheus.Counter
	Published       prometheus.Counter
	PublishFailures prometheus.Counter
	QueryResults    *prometheus.CounterVec
	DecodeFailures  prometheus.Counter
	LocalRecords    prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		PeersDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_discovered_total",
			Help:      "Peer addresses reported by local-network discovery.",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_published_total",
			Help:      "Publish calls accepted by the overlay.",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Publish calls rejected by the overlay.",
		}),
		QueryResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_results_total",
			Help:      "Completed overlay queries by outcome.",
		}, []string{"kind"}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_decode_failures_total",
			Help:      "Records received that did not decode.",
		}),
		LocalRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "local_records",
			Help:      "Records held in the local overlay store.",
		}),
	}
	m.Registry.MustRegister(
		m.PeersDiscovered,
		m.Published,
		m.PublishFailures,
		m.QueryResults,
		m.DecodeFailures,
		m.LocalRecords,
	)
	return m
}
