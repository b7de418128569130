package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "av_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"layer"}, // "memory"
	)

	// CacheMisses tracks cache misses, including expired entries
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "av_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// CacheEvictions tracks removed entries by reason
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "av_cache_evictions_total",
			Help: "Total number of cache entries removed",
		},
		[]string{"reason"}, // "capacity", "expired"
	)

	// CacheEntries tracks the number of stored entries
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "av_cache_entries",
			Help: "Current number of entries in the response cache",
		},
	)
)
