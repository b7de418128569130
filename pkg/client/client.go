// Package client provides the caching Alpha Vantage API client: request
// fingerprinting, policy-driven TTLs, sentinel detection and error
// classification.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/alphavantage-client/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultBaseURL is the Alpha Vantage query endpoint.
const DefaultBaseURL = "https://www.alphavantage.co/query"

// Prometheus metrics for upstream operations.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "av_upstream_requests_total",
		Help: "Total upstream requests by resource type and status",
	}, []string{"resource_type", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "av_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by resource type",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"resource_type"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "av_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})

	advisoriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "av_advisories_total",
		Help: "Total advisory payloads received by resource type",
	}, []string{"resource_type"})
)

// AdvisoryRecorder observes advisory payloads. It never influences whether
// a request is made.
type AdvisoryRecorder interface {
	RecordAdvisory(ctx context.Context, resourceType, message string) error
}

// Fetcher is anything that can resolve a ResourceRequest to a payload.
type Fetcher interface {
	FetchAPIData(ctx context.Context, req ResourceRequest) (*Payload, error)
}

// Client is the caching Alpha Vantage client.
type Client struct {
	httpClient *http.Client
	cache      *cache.LRU
	policy     cache.Policy
	advisories AdvisoryRecorder
	group      *singleflight.Group
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// APIKey is the Alpha Vantage credential (REQUIRED)
	APIKey string

	// BaseURL is the upstream query endpoint
	BaseURL string

	// Cache is the shared response cache (REQUIRED)
	Cache *cache.LRU

	// Policy maps resource types to TTLs; zero value uses the fallback TTL only
	Policy cache.Policy

	// Advisories records advisory payloads (optional)
	Advisories AdvisoryRecorder

	// Coalesce collapses concurrent identical misses into one upstream call
	Coalesce bool

	// Timeout bounds each upstream call
	Timeout time.Duration
}

// DefaultConfig returns a configuration with the default policy and endpoint.
func DefaultConfig(apiKey string, store *cache.LRU) Config {
	return Config{
		APIKey:  apiKey,
		BaseURL: DefaultBaseURL,
		Cache:   store,
		Policy:  cache.DefaultPolicy(),
		Timeout: 30 * time.Second,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:      cfg.Cache,
		policy:     cfg.Policy,
		advisories: cfg.Advisories,
		config:     cfg,
		logger:     log.With().Str("component", "av-client").Logger(),
	}
	if cfg.Coalesce {
		c.group = &singleflight.Group{}
	}

	return c, nil
}

// FetchAPIData resolves a request through the cache, calling the upstream
// only on a miss. Hard-error payloads and transport failures are never
// cached; advisory payloads are cached like any success.
func (c *Client) FetchAPIData(ctx context.Context, req ResourceRequest) (*Payload, error) {
	if req.ResourceType == "" {
		return nil, ErrMissingResourceType
	}

	key := req.Fingerprint()

	if cached, ok := c.cache.Get(key); ok {
		if payload, ok := cached.(*Payload); ok {
			c.logger.Debug().
				Str("resource_type", req.ResourceType).
				Msg("Cache hit")
			return payload, nil
		}
		// Foreign value under our key: drop it and refetch
		c.cache.Delete(key)
	}

	if c.group == nil {
		return c.fetchAndStore(ctx, req, key)
	}

	// The shared call outlives any single caller; each caller still honours
	// its own context while waiting.
	ch := c.group.DoChan(key, func() (any, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.Timeout)
		defer cancel()
		return c.fetchAndStore(sharedCtx, req, key)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
	case res := <-ch:
		if res.Shared {
			c.logger.Debug().Str("resource_type", req.ResourceType).Msg("Coalesced upstream call")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Payload), nil
	}
}

// fetchAndStore performs the upstream call and caches successful payloads.
func (c *Client) fetchAndStore(ctx context.Context, req ResourceRequest, key string) (*Payload, error) {
	payload, err := c.fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if msg := payload.ErrorMessage(); msg != "" {
		errorsTotal.WithLabelValues(string(ErrorClassAPI)).Inc()
		c.logger.Warn().
			Str("resource_type", req.ResourceType).
			Str("message", msg).
			Msg("Upstream returned error payload")
		return nil, &APIError{ResourceType: req.ResourceType, Message: msg}
	}

	if payload.Advisory != "" {
		advisoriesTotal.WithLabelValues(req.ResourceType).Inc()
		c.logger.Warn().
			Str("resource_type", req.ResourceType).
			Str("note", payload.Advisory).
			Msg("Upstream advisory")
		if c.advisories != nil {
			if err := c.advisories.RecordAdvisory(ctx, req.ResourceType, payload.Advisory); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to record advisory")
			}
		}
	}

	ttl := c.policy.TTLForInterval(req.ResourceType, req.Param(paramInterval))
	c.cache.Set(key, payload, ttl)
	c.logger.Debug().
		Str("resource_type", req.ResourceType).
		Dur("ttl", ttl).
		Msg("Cached response")

	return payload, nil
}

// fetch performs one upstream GET and decodes the body.
func (c *Client) fetch(ctx context.Context, req ResourceRequest) (*Payload, error) {
	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(req.ResourceType).Observe(time.Since(startTime).Seconds())
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.URL.RawQuery = req.Query(c.config.APIKey).Encode()
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("resource_type", req.ResourceType).
		Msg("Executing upstream request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		upstreamRequestsTotal.WithLabelValues(req.ResourceType, "network_error").Inc()
		c.logger.Error().Err(err).Str("resource_type", req.ResourceType).Msg("HTTP request failed")
		return nil, &TransportError{
			ResourceType: req.ResourceType,
			Class:        ErrorClassNetwork,
			Status:       "request failed",
			Err:          err,
		}
	}
	defer resp.Body.Close()

	upstreamRequestsTotal.WithLabelValues(req.ResourceType, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errClass := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Warn().
			Str("resource_type", req.ResourceType).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Upstream request error")
		return nil, &TransportError{
			ResourceType: req.ResourceType,
			StatusCode:   resp.StatusCode,
			Status:       resp.Status,
			Class:        errClass,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &TransportError{
			ResourceType: req.ResourceType,
			StatusCode:   resp.StatusCode,
			Status:       resp.Status,
			Class:        ErrorClassNetwork,
			Err:          fmt.Errorf("read body: %w", err),
		}
	}

	payload, err := decodePayload(req.ResourceType, body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassServer)).Inc()
		return nil, &TransportError{
			ResourceType: req.ResourceType,
			StatusCode:   resp.StatusCode,
			Status:       resp.Status,
			Class:        ErrorClassServer,
			Err:          err,
		}
	}

	return payload, nil
}

// Invalidate removes the cached payload for a request, if any.
func (c *Client) Invalidate(req ResourceRequest) {
	c.cache.Delete(req.Fingerprint())
}

// IsCached reports whether a fresh payload for the request is cached.
func (c *Client) IsCached(req ResourceRequest) bool {
	entry, ok := c.cache.Peek(req.Fingerprint())
	return ok && !entry.IsExpired(time.Now())
}

// Close releases resources held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the response cache (for testing).
func (c *Client) GetCache() *cache.LRU {
	return c.cache
}

// IsAPIError reports whether err carries the upstream hard-error sentinel.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
