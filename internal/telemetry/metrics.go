// Package telemetry holds the bot's Prometheus metrics.
package telemetry

import (
	"time"

	"animefinder/internal/catalog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Queries counts resolved user queries by outcome (match, no_match, catalog_empty, error).
	Queries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animefinder_queries_total",
		Help: "User queries by resolver outcome",
	}, []string{"outcome"})

	// OracleCalls counts oracle requests by result (match, none, invalid, error, cached_none).
	OracleCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animefinder_oracle_calls_total",
		Help: "Oracle requests by result",
	}, []string{"result"})
	OracleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "animefinder_oracle_duration_seconds",
		Help:    "Oracle request duration seconds",
		Buckets: prometheus.DefBuckets,
	})

	SynonymsLearned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "animefinder_synonyms_learned_total",
		Help: "Queries persisted as synonyms after an oracle match",
	})
	RecordsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "animefinder_records_published_total",
		Help: "Pending records finalized by a channel post",
	})
	CorrelationMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "animefinder_correlation_misses_total",
		Help: "Channel posts carrying a token with no pending record",
	})

	BroadcastSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animefinder_broadcast_sends_total",
		Help: "Broadcast deliveries by result (ok, failed)",
	}, []string{"result"})

	Deletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animefinder_deletions_total",
		Help: "Scheduled message deletions by result (scheduled, ok, failed, cancelled)",
	}, []string{"result"})
	DeletionsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "animefinder_deletions_in_flight",
		Help: "Deletions scheduled but not yet executed",
	})

	catalogRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "animefinder_catalog_records",
		Help: "Catalog records by state (published, pending)",
	}, []string{"state"})
	catalogUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "animefinder_catalog_users",
		Help: "Known bot users",
	})
)

// SetCatalogStats publishes a store stats snapshot into gauges.
func SetCatalogStats(st catalog.Stats) {
	catalogRecords.WithLabelValues("published").Set(float64(st.Published))
	catalogRecords.WithLabelValues("pending").Set(float64(st.Pending))
	catalogUsers.Set(float64(st.Users))
}

// Since observes the elapsed time from start.
func Since(obs prometheus.Observer, start time.Time) time.Duration {
	d := time.Since(start)
	obs.Observe(d.Seconds())
	return d
}
