// Package metrics - Prometheus collectors for price resolution and estimation
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storage_cost"

// Resolver holds the collectors updated by the pricing resolver
type Resolver struct {
	// CacheHits counts lookups served from a fresh cache entry
	CacheHits prometheus.Counter

	// CacheMisses counts lookups that required a fetch
	CacheMisses prometheus.Counter

	// Fetches counts outbound fetches by outcome (ok, empty, error)
	Fetches *prometheus.CounterVec

	// FetchDuration observes outbound fetch latency including retries
	FetchDuration prometheus.Histogram

	// StaleServed counts stale entries returned after a failed refresh
	StaleServed prometheus.Counter

	// FallbackServed counts snapshot prices returned after a failed fetch
	FallbackServed prometheus.Counter

	// RejectedWrites counts cache writes refused for an invalid key
	RejectedWrites prometheus.Counter

	// CacheEntries is the current in-memory entry count
	CacheEntries prometheus.Gauge
}

// NewResolver creates resolver collectors and registers them on reg.
// A nil registerer leaves the collectors unregistered.
func NewResolver(reg prometheus.Registerer) *Resolver {
	m := &Resolver{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "cache_hits_total",
			Help:      "Price lookups served from a fresh cache entry.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "cache_misses_total",
			Help:      "Price lookups that required an outbound fetch.",
		}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "fetches_total",
			Help:      "Outbound price fetches by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "fetch_duration_seconds",
			Help:      "Outbound price fetch latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}),
		StaleServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "stale_served_total",
			Help:      "Stale prices returned after a failed refresh.",
		}),
		FallbackServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "fallback_served_total",
			Help:      "Fallback snapshot prices returned after a failed fetch.",
		}),
		RejectedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "rejected_writes_total",
			Help:      "Cache writes refused because the meter key was invalid.",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "cache_entries",
			Help:      "Entries held in the in-memory price cache.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.CacheHits,
			m.CacheMisses,
			m.Fetches,
			m.FetchDuration,
			m.StaleServed,
			m.FallbackServed,
			m.RejectedWrites,
			m.CacheEntries,
		)
	}
	return m
}

// Engine holds the collectors updated by the estimation engine
type Engine struct {
	// Estimates counts resource estimates by result (ok, error)
	Estimates *prometheus.CounterVec

	// EstimateDuration observes end-to-end estimate latency
	EstimateDuration prometheus.Histogram
}

// NewEngine creates engine collectors and registers them on reg
func NewEngine(reg prometheus.Registerer) *Engine {
	m := &Engine{
		Estimates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "estimates_total",
			Help:      "Resource estimates by result.",
		}, []string{"result"}),
		EstimateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "estimate_duration_seconds",
			Help:      "End-to-end latency of a single resource estimate.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Estimates, m.EstimateDuration)
	}
	return m
}
