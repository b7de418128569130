package cache

import (
	"time"
)

// CacheEntry represents a cached upstream response.
type CacheEntry struct {
	// Key is the fingerprint the entry is stored under
	Key string

	// Value is the decoded response payload
	Value any

	// ExpiresAt is when the entry stops being served
	ExpiresAt time.Time

	// CachedAt is when we cached this response
	CachedAt time.Time
}

// IsExpired returns true if the entry has expired at the given instant.
// An entry is still fresh at exactly ExpiresAt.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// TTL returns the time remaining until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
