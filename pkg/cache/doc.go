// Package cache provides the in-memory response cache that sits in front of
// the rate-limited Alpha Vantage API.
//
// The package has three parts:
//
// - Canonicalize / CacheKey: deterministic request fingerprints
// - Policy: per-resource-type TTL table with a DEFAULT fallback
// - LRU: fixed-capacity least-recently-used store with per-entry expiry
//
// # Basic Usage
//
//	store, err := cache.NewLRU(cache.DefaultCapacity)
//	if err != nil {
//		return err
//	}
//	policy := cache.DefaultPolicy()
//
//	key := cache.Canonicalize("GLOBAL_QUOTE", map[string]any{"symbol": "IBM"})
//	// GLOBAL_QUOTE::{"symbol":"IBM"}
//
//	if v, ok := store.Get(key); ok {
//		return v, nil
//	}
//	store.Set(key, payload, policy.TTLFor("GLOBAL_QUOTE"))
//
// # Fingerprints
//
// Parameters are sorted by key and nil values are dropped before
// serialization, so {b:2, a:1} and {a:1, b:2, c:nil} share a fingerprint.
// The resource type prefixes the key, so identical parameter sets for
// different resource types never collide.
//
// # Expiry and Eviction
//
// An expired entry is a miss on Get and is removed at that point. There is
// no background sweep inside the cache; callers that want eager cleanup run
// Prune on a schedule. Capacity eviction always drops the least recently
// used entry, expired or not.
//
// # Metrics
//
// The cache exports Prometheus metrics:
//
//   - av_cache_hits_total{layer="memory"} - Cache hits
//   - av_cache_misses_total - Cache misses (including expired reads)
//   - av_cache_evictions_total{reason} - Entries removed (capacity, expired)
//   - av_cache_entries - Current entry count
package cache
