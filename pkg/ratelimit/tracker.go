package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for advisory tracking.
var (
	advisoryHealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "av_advisory_healthy",
		Help: "1 when no quota advisory was seen within the cool-down window",
	})

	advisoryLastTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "av_advisory_last_timestamp_seconds",
		Help: "Unix time of the most recent quota advisory",
	})
)

// Tracker records quota advisories reported by the client.
type Tracker struct {
	store    Store
	cooldown time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewTracker creates a new advisory tracker.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	advisoryHealthy.Set(1)
	return &Tracker{
		store:    store,
		cooldown: DefaultCooldown,
		now:      time.Now,
		logger:   logger.With().Str("component", "av-advisories").Logger(),
	}
}

// SetCooldown changes how long the state stays unhealthy after an advisory.
func (t *Tracker) SetCooldown(d time.Duration) {
	t.cooldown = d
}

// SetClock replaces time.Now (for testing).
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// RecordAdvisory stores one advisory. It satisfies client.AdvisoryRecorder.
func (t *Tracker) RecordAdvisory(ctx context.Context, resourceType, message string) error {
	now := t.now()
	state, err := t.store.Update(ctx, func(s *AdvisoryState) {
		s.record(now, t.cooldown, resourceType, message)
	})
	if err != nil {
		return fmt.Errorf("record advisory: %w", err)
	}
	state.UpdateHealth(now, t.cooldown)

	advisoryHealthy.Set(0)
	advisoryLastTimestamp.Set(float64(now.Unix()))

	t.logger.Warn().
		Str("resource_type", resourceType).
		Int64("advisories", state.Advisories).
		Dur("cooldown", t.cooldown).
		Msg("Upstream quota advisory recorded")

	return nil
}

// GetState retrieves the current advisory state.
// Returns a default healthy state if nothing was recorded.
func (t *Tracker) GetState(ctx context.Context) (*AdvisoryState, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("get advisory state: %w", err)
	}
	if state == nil {
		t.logger.Debug().Msg("No advisory state recorded, returning default healthy state")
		state = &AdvisoryState{}
	}

	state.UpdateHealth(t.now(), t.cooldown)
	if state.IsHealthy {
		advisoryHealthy.Set(1)
	}
	return state, nil
}

// Healthy reports whether no advisory was seen within the cool-down window.
// Store failures report unhealthy.
func (t *Tracker) Healthy(ctx context.Context) bool {
	state, err := t.GetState(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("Advisory state check failed")
		return false
	}
	return state.IsHealthy
}

// Reset discards the recorded history.
func (t *Tracker) Reset(ctx context.Context) error {
	if err := t.store.Reset(ctx); err != nil {
		return err
	}
	advisoryHealthy.Set(1)
	t.logger.Info().Msg("Advisory state reset")
	return nil
}
