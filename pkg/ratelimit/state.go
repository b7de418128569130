// Package ratelimit tracks upstream quota advisories. The upstream signals
// throttling with advisory payloads ("Note", "Information") rather than
// headers; the tracker records them so operators and readiness probes can
// see when the quota was last hit. Tracking is observational only and never
// blocks or delays requests.
package ratelimit

import (
	"time"
)

// RedisKeyAdvisoryState is the Redis key holding the shared advisory state.
const RedisKeyAdvisoryState = "av:ratelimit:advisory_state"

// DefaultCooldown is how long after the last advisory the state stays unhealthy.
const DefaultCooldown = time.Minute

// AdvisoryState is the recorded advisory history. It may be shared across
// instances via a RedisStore.
type AdvisoryState struct {
	// Advisories is the number of advisory payloads seen in the current
	// cool-down window. It restarts from zero once the window has passed.
	Advisories int64 `json:"advisories" msgpack:"advisories"`

	// LastAdvisoryAt is when the most recent advisory was recorded.
	LastAdvisoryAt time.Time `json:"last_advisory_at" msgpack:"last_advisory_at"`

	// LastMessage is the text of the most recent advisory.
	LastMessage string `json:"last_message,omitempty" msgpack:"last_message"`

	// LastResourceType is the function that produced the most recent advisory.
	LastResourceType string `json:"last_resource_type,omitempty" msgpack:"last_resource_type"`

	// IsHealthy is derived on read and never stored.
	IsHealthy bool `json:"is_healthy" msgpack:"-"`
}

// UpdateHealth derives IsHealthy: no advisory within the cool-down window.
// A healthy state reports no advisories for the current window.
func (s *AdvisoryState) UpdateHealth(now time.Time, cooldown time.Duration) {
	s.IsHealthy = s.windowClosed(now, cooldown)
	if s.IsHealthy {
		s.Advisories = 0
	}
}

func (s *AdvisoryState) windowClosed(now time.Time, cooldown time.Duration) bool {
	return s.LastAdvisoryAt.IsZero() || now.Sub(s.LastAdvisoryAt) >= cooldown
}

// TimeUntilHealthy returns the remaining cool-down. Returns 0 once healthy.
func (s *AdvisoryState) TimeUntilHealthy(now time.Time, cooldown time.Duration) time.Duration {
	if s.LastAdvisoryAt.IsZero() {
		return 0
	}
	remaining := s.LastAdvisoryAt.Add(cooldown).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsStale returns true if no advisory was recorded within maxAge.
func (s *AdvisoryState) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastAdvisoryAt) > maxAge
}

// record applies one advisory to the state. An advisory arriving after the
// previous window closed starts a new count.
func (s *AdvisoryState) record(now time.Time, cooldown time.Duration, resourceType, message string) {
	if s.windowClosed(now, cooldown) {
		s.Advisories = 0
	}
	s.Advisories++
	s.LastAdvisoryAt = now
	s.LastMessage = message
	s.LastResourceType = resourceType
}
