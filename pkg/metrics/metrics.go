// Package metrics bundles the pipeline's Prometheus collectors on an
// injected registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the ingest pipeline collectors.
type Metrics struct {
	IngestsTotal      *prometheus.CounterVec
	IngestDuration    prometheus.Histogram
	DuplicatesTotal   prometheus.Counter
	BarcodesExtracted prometheus.Counter
	DiagnosticsTotal  *prometheus.CounterVec
	WebhookAttempts   *prometheus.CounterVec
	SwapRequests      *prometheus.CounterVec
}

// New registers all collectors on the given registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		IngestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cnab_ingests_total",
			Help: "Ingest operations by dialect and outcome.",
		}, []string{"dialect", "outcome"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cnab_ingest_duration_seconds",
			Help:    "End to end ingest duration.",
			Buckets: prometheus.DefBuckets,
		}),
		DuplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cnab_duplicates_total",
			Help: "Ingests short-circuited by content hash dedup.",
		}),
		BarcodesExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cnab_barcodes_extracted_total",
			Help: "Barcodes extracted from parsed files.",
		}),
		DiagnosticsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cnab_parse_diagnostics_total",
			Help: "Parse diagnostics by severity.",
		}, []string{"severity"}),
		WebhookAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cnab_webhook_attempts_total",
			Help: "Webhook delivery attempts by result.",
		}, []string{"result"}),
		SwapRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cnab_swap_requests_total",
			Help: "Settlement API requests by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.IngestsTotal,
		m.IngestDuration,
		m.DuplicatesTotal,
		m.BarcodesExtracted,
		m.DiagnosticsTotal,
		m.WebhookAttempts,
		m.SwapRequests,
	)
	return m
}
