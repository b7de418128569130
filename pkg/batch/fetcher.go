package batch

import (
	"context"
	"time"

	"github.com/Sternrassler/alphavantage-client/pkg/client"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of requests in flight.
	// The free upstream tier allows 5 requests per minute.
	MaxConcurrency int

	// Timeout per request
	Timeout time.Duration
}

// DefaultConfig returns a conservative configuration for the upstream quota.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		Timeout:        30 * time.Second,
	}
}

// Result is the outcome of one request. Index is its position in the input.
type Result struct {
	Index   int
	Request client.ResourceRequest
	Payload *client.Payload
	Err     error
}

// Fetcher runs requests through a client.Fetcher in parallel.
type Fetcher struct {
	fetcher client.Fetcher
	config  Config
}

// NewFetcher creates a new batch fetcher.
func NewFetcher(fetcher client.Fetcher, config Config) *Fetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Fetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAll resolves every request and returns results in input order.
// Requests not started before ctx is cancelled report the context error.
func (f *Fetcher) FetchAll(ctx context.Context, requests []client.ResourceRequest) []Result {
	start := time.Now()
	results := make([]Result, len(requests))

	var g errgroup.Group
	g.SetLimit(f.config.MaxConcurrency)

	for i, req := range requests {
		results[i] = Result{Index: i, Request: req}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}

			reqCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
			defer cancel()

			payload, err := f.fetcher.FetchAPIData(reqCtx, req)
			if err != nil {
				log.Warn().
					Err(err).
					Str("resource_type", req.ResourceType).
					Int("index", i).
					Msg("Batch request failed")
				results[i].Err = err
				return nil
			}
			results[i].Payload = payload
			return nil
		})
	}

	// Workers never return errors; failures live in the results
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}

	log.Info().
		Int("requests", len(requests)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	return results
}
