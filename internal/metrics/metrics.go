package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "probability_engine_provider_calls_total",
			Help: "Total upstream provider calls by outcome",
		},
		[]string{"provider", "outcome"},
	)

	ProviderCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "probability_engine_provider_call_latency_seconds",
			Help:    "Upstream provider call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	ProviderFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "probability_engine_provider_fallbacks_total",
			Help: "Fallbacks to the next provider in the priority chain",
		},
		[]string{"provider", "reason"},
	)

	ReportsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "probability_engine_reports_generated_total",
			Help: "Probability reports generated by completeness",
		},
		[]string{"outcome"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "probability_engine_cache_lookups_total",
			Help: "Memo cache lookups by result",
		},
		[]string{"result"},
	)
)
