// Package config loads the proxy configuration from .env, the environment
// and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/alphavantage-client/pkg/cache"
	"github.com/Sternrassler/alphavantage-client/pkg/client"
	"github.com/Sternrassler/alphavantage-client/pkg/logging"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingAPIKey is returned when no Alpha Vantage key is configured.
var ErrMissingAPIKey = errors.New("ALPHAVANTAGE_API_KEY is required")

// Defaults.
const (
	DefaultCacheCapacity   = 500
	DefaultPort            = 8080
	DefaultUpstreamTimeout = 30 * time.Second
	DefaultPruneSchedule   = "@every 5m"
	DefaultWarmSchedule    = "@every 15m"
)

// Config holds application configuration.
type Config struct {
	APIKey          string
	BaseURL         string
	CacheCapacity   int
	Port            int
	LogLevel        string
	LogPretty       bool
	RedisURL        string // empty = in-memory advisory store
	UpstreamTimeout time.Duration
	MaxRetries      int // caller-side retries; 0 disables
	Coalesce        bool
	PruneSchedule   string
	WarmSchedule    string

	// TTLOverrides are merged over the default policy once at startup
	TTLOverrides map[string]time.Duration

	// Warm lists requests the scheduler keeps cached
	Warm []WarmRequest
}

// WarmRequest is a request the scheduler re-fetches periodically.
type WarmRequest struct {
	Function string         `yaml:"function" json:"function"`
	Params   map[string]any `yaml:"params" json:"params"`
}

// Request converts the entry into a client request.
func (w WarmRequest) Request() client.ResourceRequest {
	params := make(map[string]any, len(w.Params))
	for k, v := range w.Params {
		params[k] = v
	}
	return client.ResourceRequest{ResourceType: w.Function, Params: params}
}

// fileConfig is the YAML layout. Pointer fields distinguish "unset" from zero.
type fileConfig struct {
	APIKey          string            `yaml:"api_key"`
	BaseURL         string            `yaml:"base_url"`
	CacheCapacity   *int              `yaml:"cache_capacity"`
	Port            *int              `yaml:"port"`
	LogLevel        string            `yaml:"log_level"`
	LogPretty       *bool             `yaml:"log_pretty"`
	RedisURL        string            `yaml:"redis_url"`
	UpstreamTimeout string            `yaml:"upstream_timeout"`
	MaxRetries      *int              `yaml:"max_retries"`
	Coalesce        *bool             `yaml:"coalesce"`
	PruneSchedule   string            `yaml:"prune_schedule"`
	WarmSchedule    string            `yaml:"warm_schedule"`
	TTLOverrides    map[string]string `yaml:"ttl_overrides"`
	Warm            []WarmRequest     `yaml:"warm"`
}

// Load reads configuration from a .env file (if present), the environment
// and, when path is non-empty, a YAML file whose values take precedence.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		APIKey:          getEnv("ALPHAVANTAGE_API_KEY", ""),
		BaseURL:         getEnv("ALPHAVANTAGE_BASE_URL", client.DefaultBaseURL),
		CacheCapacity:   getEnvAsInt("CACHE_CAPACITY", DefaultCacheCapacity),
		Port:            getEnvAsInt("PORT", DefaultPort),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogPretty:       getEnvAsBool("LOG_PRETTY", false),
		RedisURL:        getEnv("REDIS_URL", ""),
		UpstreamTimeout: getEnvAsDuration("UPSTREAM_TIMEOUT", DefaultUpstreamTimeout),
		MaxRetries:      getEnvAsInt("MAX_RETRIES", 0),
		Coalesce:        getEnvAsBool("COALESCE_REQUESTS", false),
		PruneSchedule:   getEnv("PRUNE_SCHEDULE", DefaultPruneSchedule),
		WarmSchedule:    getEnv("WARM_SCHEDULE", DefaultWarmSchedule),
		TTLOverrides:    map[string]time.Duration{},
	}

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// mergeFile overlays the YAML file at path onto cfg.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	setString(&c.APIKey, fc.APIKey)
	setString(&c.BaseURL, fc.BaseURL)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.RedisURL, fc.RedisURL)
	setString(&c.PruneSchedule, fc.PruneSchedule)
	setString(&c.WarmSchedule, fc.WarmSchedule)
	if fc.CacheCapacity != nil {
		c.CacheCapacity = *fc.CacheCapacity
	}
	if fc.Port != nil {
		c.Port = *fc.Port
	}
	if fc.LogPretty != nil {
		c.LogPretty = *fc.LogPretty
	}
	if fc.MaxRetries != nil {
		c.MaxRetries = *fc.MaxRetries
	}
	if fc.Coalesce != nil {
		c.Coalesce = *fc.Coalesce
	}
	if fc.UpstreamTimeout != "" {
		d, err := time.ParseDuration(fc.UpstreamTimeout)
		if err != nil {
			return fmt.Errorf("upstream_timeout: %w", err)
		}
		c.UpstreamTimeout = d
	}

	for resource, raw := range fc.TTLOverrides {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("ttl_overrides[%s]: %w", resource, err)
		}
		c.TTLOverrides[policyKey(resource)] = d
	}

	c.Warm = append(c.Warm, fc.Warm...)
	return nil
}

// Validate checks if required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.CacheCapacity < 1 {
		return fmt.Errorf("cache capacity must be positive (got %d)", c.CacheCapacity)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port out of range (got %d)", c.Port)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative (got %d)", c.MaxRetries)
	}
	for i, w := range c.Warm {
		if w.Function == "" {
			return fmt.Errorf("warm[%d]: function is required", i)
		}
	}
	return nil
}

// Policy returns the default TTL policy with the configured overrides applied.
func (c *Config) Policy() (cache.Policy, error) {
	if len(c.TTLOverrides) == 0 {
		return cache.DefaultPolicy(), nil
	}
	return cache.DefaultPolicy().WithOverrides(c.TTLOverrides)
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// policyKey upper-cases the function part of "FUNCTION" or "FUNCTION:interval".
func policyKey(resource string) string {
	if fn, interval, ok := strings.Cut(resource, ":"); ok {
		return strings.ToUpper(fn) + ":" + interval
	}
	return strings.ToUpper(resource)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
