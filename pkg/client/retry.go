package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "av_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "av_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "av_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryConfigForErrorClass returns the retry configuration for an error class.
// The free tier resets its per-minute quota, so rate limits back off longest.
func RetryConfigForErrorClass(errorClass ErrorClass) RetryConfig {
	switch errorClass {
	case ErrorClassServer:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case ErrorClassRateLimit:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    15 * time.Second,
			MaxBackoff:        60 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case ErrorClassNetwork:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    2 * time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
		}
	default:
		return DefaultRetryConfig()
	}
}

// Retrier wraps a Fetcher and retries transient failures. The caching client
// itself never retries; callers opt in by wrapping it.
type Retrier struct {
	next   Fetcher
	config func(ErrorClass) RetryConfig
	logger zerolog.Logger
}

// NewRetrier wraps next with up to maxAttempts attempts per request, using the
// per-class backoff from RetryConfigForErrorClass. maxAttempts < 1 disables retries.
func NewRetrier(next Fetcher, maxAttempts int) *Retrier {
	return NewRetrierWithConfig(next, func(class ErrorClass) RetryConfig {
		cfg := RetryConfigForErrorClass(class)
		cfg.MaxAttempts = maxAttempts
		return cfg
	})
}

// NewRetrierWithConfig wraps next with a custom per-class retry configuration.
func NewRetrierWithConfig(next Fetcher, config func(ErrorClass) RetryConfig) *Retrier {
	return &Retrier{
		next:   next,
		config: config,
		logger: log.With().Str("component", "av-retry").Logger(),
	}
}

// FetchAPIData implements Fetcher.
func (r *Retrier) FetchAPIData(ctx context.Context, req ResourceRequest) (*Payload, error) {
	var payload *Payload
	err := r.retryWithBackoff(ctx, func() error {
		var err error
		payload, err = r.next.FetchAPIData(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// retryWithBackoff executes fn with exponential backoff. The error class,
// and with it the backoff schedule, is taken from the first failure.
func (r *Retrier) retryWithBackoff(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}

	errorClass := ClassOf(err)
	if !shouldRetry(errorClass) {
		return err
	}

	config := r.config(errorClass)
	if config.MaxAttempts <= 1 {
		return err
	}

	lastErr := err
	backoff := config.InitialBackoff

	for attempt := 2; attempt <= config.MaxAttempts; attempt++ {
		retriesTotal.WithLabelValues(string(errorClass)).Inc()

		// Add jitter (±20% randomness)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		retryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(jitter.Seconds())

		r.logger.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			r.logger.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(jitter):
		}

		err := fn()
		if err == nil {
			r.logger.Info().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Request succeeded after retry")
			return nil
		}
		lastErr = err

		// A later non-retryable failure ends the loop
		if !shouldRetry(ClassOf(err)) {
			return err
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	retryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	r.logger.Warn().
		Str("error_class", string(errorClass)).
		Int("max_attempts", config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxAttempts, lastErr)
}
