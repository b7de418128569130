package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/alphavantage-client/internal/config"
	"github.com/Sternrassler/alphavantage-client/pkg/cache"
	"github.com/Sternrassler/alphavantage-client/pkg/client"
	"github.com/Sternrassler/alphavantage-client/pkg/logging"
	"github.com/Sternrassler/alphavantage-client/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app is the wired object graph shared by the subcommands.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	cache   *cache.LRU
	client  *client.Client
	fetcher client.Fetcher
	tracker *ratelimit.Tracker
	redis   *redis.Client
}

// newApp loads configuration and builds the cache, advisory tracker and client.
func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	a := &app{cfg: cfg, log: logging.Setup(cfg.Logging())}

	policy, err := cfg.Policy()
	if err != nil {
		return nil, fmt.Errorf("ttl policy: %w", err)
	}

	a.cache, err = cache.NewLRU(cfg.CacheCapacity)
	if err != nil {
		return nil, err
	}

	store, err := a.advisoryStore(ctx)
	if err != nil {
		return nil, err
	}
	a.tracker = ratelimit.NewTracker(store, a.log)

	clientCfg := client.DefaultConfig(cfg.APIKey, a.cache)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.Policy = policy
	clientCfg.Advisories = a.tracker
	clientCfg.Coalesce = cfg.Coalesce
	clientCfg.Timeout = cfg.UpstreamTimeout

	a.client, err = client.New(clientCfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create client: %w", err)
	}

	a.fetcher = a.client
	if cfg.MaxRetries > 0 {
		a.fetcher = client.NewRetrier(a.client, cfg.MaxRetries+1)
	}

	return a, nil
}

// advisoryStore connects to Redis when REDIS_URL is set, else stays in memory.
func (a *app) advisoryStore(ctx context.Context) (ratelimit.Store, error) {
	if a.cfg.RedisURL == "" {
		return ratelimit.NewMemoryStore(), nil
	}

	opt, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	a.redis = redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(pingCtx).Err(); err != nil {
		a.redis.Close()
		a.redis = nil
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.log.Info().Str("addr", opt.Addr).Msg("Connected to Redis advisory store")

	return ratelimit.NewRedisStore(a.redis), nil
}

func (a *app) close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
