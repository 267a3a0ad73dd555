// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRuns counts ingestion attempts by trigger and outcome
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scorestream_sync_runs_total",
			Help: "Catalog ingestion attempts by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	// SyncDuration observes how long ingestion runs take
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scorestream_sync_duration_seconds",
			Help:    "Duration of catalog ingestion runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// IngestRecords counts upstream records by category and result
	IngestRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scorestream_ingest_records_total",
			Help: "Upstream records processed by category and result (stored, skipped, failed)",
		},
		[]string{"category", "result"},
	)

	// TopologyChannels counts channel reconciliation results
	TopologyChannels = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scorestream_topology_channels_total",
			Help: "Platform channels reconciled by result (created, updated, unchanged, error)",
		},
		[]string{"result"},
	)

	// PlatformAuth counts token acquisitions by kind (login, refresh) and result
	PlatformAuth = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scorestream_platform_auth_total",
			Help: "Platform token acquisitions by kind and result",
		},
		[]string{"kind", "result"},
	)

	// UpstreamBreakerState is 0 closed, 1 half-open, 2 open
	UpstreamBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scorestream_upstream_circuit_breaker_state",
			Help: "Sports-data circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

// CatalogEntities reports catalog size by kind, refreshed when stats are computed
var CatalogEntities = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "scorestream_catalog_entities",
		Help: "Catalog entities by kind (organizations, programs)",
	},
	[]string{"kind"},
)
