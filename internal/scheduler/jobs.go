package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/alphavantage-client/pkg/batch"
	"github.com/Sternrassler/alphavantage-client/pkg/cache"
	"github.com/Sternrassler/alphavantage-client/pkg/client"
	"github.com/rs/zerolog"
)

// PruneJob physically removes expired cache entries. Expired entries are
// never served either way; pruning only reclaims their slots.
type PruneJob struct {
	cache *cache.LRU
	log   zerolog.Logger
}

// NewPruneJob creates the cache-prune job.
func NewPruneJob(store *cache.LRU, log zerolog.Logger) *PruneJob {
	return &PruneJob{cache: store, log: log.With().Str("job", "cache-prune").Logger()}
}

// Name implements Job.
func (j *PruneJob) Name() string { return "cache-prune" }

// Run implements Job.
func (j *PruneJob) Run() error {
	removed := j.cache.Prune()
	j.log.Info().
		Int("removed", removed).
		Int("entries", j.cache.Len()).
		Msg("Pruned expired cache entries")
	return nil
}

// WarmJob keeps a fixed set of requests cached by fetching them through the
// client. Fresh entries are served from the cache, so only expired ones hit
// the upstream.
type WarmJob struct {
	fetcher  *batch.Fetcher
	requests []client.ResourceRequest
	timeout  time.Duration
	log      zerolog.Logger
}

// NewWarmJob creates the cache-warm job. timeout bounds a whole run.
func NewWarmJob(fetcher client.Fetcher, requests []client.ResourceRequest, timeout time.Duration, log zerolog.Logger) *WarmJob {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	cfg := batch.DefaultConfig()
	// Warming is background work; keep it gentle on the upstream quota
	cfg.MaxConcurrency = 2
	return &WarmJob{
		fetcher:  batch.NewFetcher(fetcher, cfg),
		requests: requests,
		timeout:  timeout,
		log:      log.With().Str("job", "cache-warm").Logger(),
	}
}

// Name implements Job.
func (j *WarmJob) Name() string { return "cache-warm" }

// Run implements Job. It reports an error when any request failed.
func (j *WarmJob) Run() error {
	if len(j.requests) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	results := j.fetcher.FetchAll(ctx, j.requests)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			j.log.Warn().
				Err(r.Err).
				Str("resource_type", r.Request.ResourceType).
				Msg("Warm request failed")
		}
	}

	j.log.Info().
		Int("requests", len(results)).
		Int("failed", failed).
		Msg("Cache warm run finished")

	if failed > 0 {
		return fmt.Errorf("cache warm: %d of %d requests failed", failed, len(results))
	}
	return nil
}
