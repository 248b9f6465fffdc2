// Package metrics exposes Prometheus counters for campaign bookkeeping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	CampaignsCreated   prometheus.Counter
	CampaignsDeleted   prometheus.Counter
	Contributions      prometheus.Counter
	EntriesAdded       prometheus.Counter
	Rejections         *prometheus.CounterVec
	ExtractionFailures prometheus.Counter
	OrphanedArtifacts  prometheus.Counter
}

// New creates and registers all counters.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CampaignsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "receipts_campaigns_created_total",
			Help: "Campaigns created.",
		}),
		CampaignsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "receipts_campaigns_deleted_total",
			Help: "Campaigns deleted.",
		}),
		Contributions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "receipts_contributions_total",
			Help: "Contributions recorded, one person slot each.",
		}),
		EntriesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "receipts_entries_added_total",
			Help: "Line item entries appended to campaigns.",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "receipts_contribution_rejections_total",
			Help: "Contributions rejected, by error kind.",
		}, []string{"kind"}),
		ExtractionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "receipts_extraction_failures_total",
			Help: "Failed or unparseable extraction calls.",
		}),
		OrphanedArtifacts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "receipts_orphaned_artifacts_total",
			Help: "Artifacts written whose campaign save failed.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CampaignsCreated,
		m.CampaignsDeleted,
		m.Contributions,
		m.EntriesAdded,
		m.Rejections,
		m.ExtractionFailures,
		m.OrphanedArtifacts,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
