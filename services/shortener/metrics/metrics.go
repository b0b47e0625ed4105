package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// outcome: redirected, not_found, timeout, failed
	Redirects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkpulse_redirects_total",
		Help: "Redirect attempts by outcome.",
	}, []string{"outcome"})

	// strategy: alias, short_url, fuzzy
	ResolutionHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkpulse_resolution_hits_total",
		Help: "Successful resolutions by the strategy that produced the hit.",
	}, []string{"strategy"})

	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "linkpulse_resolve_duration_seconds",
		Help:    "Time spent resolving a token.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	AccountingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkpulse_accounting_failures_total",
		Help: "Click increments that failed and were skipped.",
	})

	// field: geo, persist, publish, panic
	EnrichmentDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkpulse_enrichment_degraded_total",
		Help: "Enrichment steps that fell back or failed.",
	}, []string{"field"})

	EnrichmentDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkpulse_enrichment_dropped_total",
		Help: "Enrichment tasks dropped because the queue was full.",
	})

	EnrichmentQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkpulse_enrichment_queue_depth",
		Help: "Enrichment tasks waiting for a worker.",
	})

	QuotaRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkpulse_quota_rejections_total",
		Help: "Creations refused by the quota guard, by exhausted kind.",
	}, []string{"kind"})

	LinksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkpulse_links_created_total",
		Help: "Links created.",
	})

	// result: hit, miss, error
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkpulse_cache_lookups_total",
		Help: "Alias cache lookups by result.",
	}, []string{"result"})

	GeoBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkpulse_geo_breaker_state",
		Help: "Geo lookup circuit breaker state: 0 closed, 1 open, 2 half-open.",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkpulse_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "linkpulse_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)
