// Package metrics provides the Prometheus registry and exposition handler for
// the Alpha Vantage client. All metrics are defined in their respective
// packages (client, cache, ratelimit, options) to keep them modular and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler serving the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - av_cache_hits_total{layer="memory"} (Counter): Cache hits by layer
//   - av_cache_misses_total (Counter): Cache misses, including expired entries
//   - av_cache_evictions_total{reason} (Counter): Removed entries (capacity, expired)
//   - av_cache_entries (Gauge): Current number of cached entries
//
// Upstream Metrics (pkg/client):
//   - av_upstream_requests_total{resource_type, status} (Counter): Upstream calls by function and HTTP status
//   - av_upstream_request_duration_seconds{resource_type} (Histogram): Upstream call duration
//   - av_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, api)
//   - av_advisories_total{resource_type} (Counter): Advisory payloads received
//
// Retry Metrics (pkg/client):
//   - av_retries_total{error_class} (Counter): Retry attempts by error class
//   - av_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - av_retry_exhausted_total{error_class} (Counter): Retries exhausted
//
// Advisory Metrics (pkg/ratelimit):
//   - av_advisory_healthy (Gauge): 1 when no advisory arrived within the cool-down window
//   - av_advisory_last_timestamp_seconds (Gauge): Unix time of the last advisory
//
// Options Metrics (pkg/options):
//   - av_options_filtered_ratio (Histogram): filtered_count / total_count per pipeline run
//
// Example Queries:
//
//	# Cache hit rate
//	rate(av_cache_hits_total[5m]) / (rate(av_cache_hits_total[5m]) + rate(av_cache_misses_total[5m]))
//
//	# Upstream calls per function
//	sum by (resource_type) (rate(av_upstream_requests_total[5m]))
//
//	# Advisory pressure
//	increase(av_advisories_total[1h])
