// Package metrics exposes Prometheus instrumentation for the analysis core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the fetch coordinator and cache.
type Metrics struct {
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	StaleFallbacks  prometheus.Counter
	DedupedRequests prometheus.Counter
	FetchErrors     *prometheus.CounterVec // labels: kind
	DecisionErrors  prometheus.Counter
	DecisionsTotal  *prometheus.CounterVec // labels: decision
	FetchDur        prometheus.Histogram
	SweptCacheRows  prometheus.Counter
	SweptDecisions  prometheus.Counter
	ReconciledWeeks prometheus.Counter
	PnLBackfills    prometheus.Counter
}

// New registers and returns all service metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketmind_cache_hits_total",
			Help: "Requests served from a fresh cache entry",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketmind_cache_misses_total",
			Help: "Requests that required an external fetch",
		}),
		StaleFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketmind_stale_fallbacks_total",
			Help: "Requests served a stale entry after a fetch failure",
		}),
		DedupedRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketmind_deduped_requests_total",
			Help: "Requests that waited on another request's in-flight fetch",
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketmind_fetch_errors_total",
			Help: "Market data fetch failures by kind",
		}, []string{"kind"}),
		DecisionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketmind_decision_errors_total",
			Help: "AI decision provider failures",
		}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketmind_decisions_total",
			Help: "Persisted decisions by value",
		}, []string{"decision"}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketmind_fetch_duration_seconds",
			Help:    "End-to-end duration of leader fetches (data + indicators + decision)",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		SweptCacheRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketmind_swept_cache_rows_total",
			Help: "Cache rows removed by the retention sweep",
		}),
		SweptDecisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketmind_swept_decisions_total",
			Help: "Decision rows removed by the retention sweep",
		}),
		ReconciledWeeks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketmind_reconciled_weeks_total",
			Help: "Weekly predictions reconciled against actual closes",
		}),
		PnLBackfills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketmind_pnl_backfills_total",
			Help: "Decisions whose realized P&L was backfilled",
		}),
	}

	reg.MustRegister(
		m.CacheHits, m.CacheMisses, m.StaleFallbacks, m.DedupedRequests,
		m.FetchErrors, m.DecisionErrors, m.DecisionsTotal, m.FetchDur,
		m.SweptCacheRows, m.SweptDecisions, m.ReconciledWeeks, m.PnLBackfills,
	)

	return m
}
