package cache

import (
	"fmt"
	"time"
)

// DefaultResourceType is the policy key holding the fallback TTL.
const DefaultResourceType = "DEFAULT"

// TTL tiers, fastest-changing first.
const (
	TTLRealtime    = 1 * time.Minute
	TTLQuote       = 5 * time.Minute
	TTLIntraday    = 6 * time.Hour
	TTLDaily       = 24 * time.Hour
	TTLFundamental = 7 * 24 * time.Hour
	TTLMacro       = 30 * 24 * time.Hour
	TTLDefault     = 1 * time.Hour
)

// Policy maps upstream resource types to cache lifetimes.
// It is built once at startup and never mutated afterwards.
type Policy struct {
	ttls       map[string]time.Duration
	defaultTTL time.Duration
}

// defaultTTLs is keyed by upstream function name. Intraday series are
// additionally keyed by "FUNCTION:interval" (see TTLForInterval).
var defaultTTLs = map[string]time.Duration{
	// Intraday series
	"TIME_SERIES_INTRADAY":       TTLRealtime,
	"TIME_SERIES_INTRADAY:1min":  1 * time.Minute,
	"TIME_SERIES_INTRADAY:5min":  5 * time.Minute,
	"TIME_SERIES_INTRADAY:15min": 15 * time.Minute,
	"TIME_SERIES_INTRADAY:30min": 30 * time.Minute,
	"TIME_SERIES_INTRADAY:60min": 60 * time.Minute,
	"CURRENCY_EXCHANGE_RATE":     TTLRealtime,

	// Quote-like data
	"GLOBAL_QUOTE":       TTLQuote,
	"MARKET_STATUS":      TTLQuote,
	"NEWS_SENTIMENT":     TTLQuote,
	"TOP_GAINERS_LOSERS": TTLQuote,

	// Daily series and indicators
	"TIME_SERIES_DAILY":          TTLIntraday,
	"TIME_SERIES_DAILY_ADJUSTED": TTLIntraday,
	"DIGITAL_CURRENCY_DAILY":     TTLIntraday,
	"INSIDER_TRANSACTIONS":       TTLIntraday,
	"ANALYTICS_FIXED_WINDOW":     TTLIntraday,
	"ANALYTICS_SLIDING_WINDOW":   TTLIntraday,
	"SMA":                        TTLIntraday,
	"EMA":                        TTLIntraday,
	"RSI":                        TTLIntraday,
	"BBANDS":                     TTLIntraday,
	"ADX":                        TTLIntraday,
	"OBV":                        TTLIntraday,
	"ATR":                        TTLIntraday,
	"AD":                         TTLIntraday,
	"STOCH":                      TTLIntraday,
	"AROON":                      TTLIntraday,

	// Weekly and calendar-style data
	"TIME_SERIES_WEEKLY":       TTLDaily,
	"DIGITAL_CURRENCY_WEEKLY":  TTLDaily,
	"EARNINGS_CALENDAR":        TTLDaily,
	"IPO_CALENDAR":             TTLDaily,
	"TREASURY_YIELD":           TTLDaily,
	"FEDERAL_FUNDS_RATE":       TTLDaily,
	"HISTORICAL_OPTIONS":       TTLDaily,
	"SYMBOL_SEARCH":            TTLDaily,

	// Quarterly and annual fundamentals
	"TIME_SERIES_MONTHLY":      TTLFundamental,
	"DIGITAL_CURRENCY_MONTHLY": TTLFundamental,
	"OVERVIEW":                 TTLFundamental,
	"INCOME_STATEMENT":         TTLFundamental,
	"BALANCE_SHEET":            TTLFundamental,
	"CASH_FLOW":                TTLFundamental,
	"EARNINGS":                 TTLFundamental,
	"DIVIDENDS":                TTLFundamental,
	"SPLITS":                   TTLFundamental,
	"ETF_PROFILE":              TTLFundamental,
	"LISTING_STATUS":           TTLFundamental,

	// Slow-moving macro indicators
	"REAL_GDP":                 TTLMacro,
	"REAL_GDP_PER_CAPITA":      TTLMacro,
	"CPI":                      TTLMacro,
	"INFLATION":                TTLMacro,
	"RETAIL_SALES":             TTLMacro,
	"DURABLES":                 TTLMacro,
	"UNEMPLOYMENT":             TTLMacro,
	"NONFARM_PAYROLL":          TTLMacro,
	"EARNINGS_CALL_TRANSCRIPT": TTLMacro,
}

// DefaultPolicy returns the built-in TTL table with a 1 hour default.
func DefaultPolicy() Policy {
	ttls := make(map[string]time.Duration, len(defaultTTLs))
	for k, v := range defaultTTLs {
		ttls[k] = v
	}
	return Policy{ttls: ttls, defaultTTL: TTLDefault}
}

// NewPolicy builds a policy from an explicit table. A DEFAULT entry, when
// present, replaces the fallback TTL. Non-positive durations are rejected.
func NewPolicy(table map[string]time.Duration) (Policy, error) {
	p := Policy{ttls: make(map[string]time.Duration, len(table)), defaultTTL: TTLDefault}
	for k, v := range table {
		if v <= 0 {
			return Policy{}, fmt.Errorf("ttl for %q must be positive (got %s)", k, v)
		}
		if k == DefaultResourceType {
			p.defaultTTL = v
			continue
		}
		p.ttls[k] = v
	}
	return p, nil
}

// WithOverrides returns a copy of p with the given entries replaced.
func (p Policy) WithOverrides(overrides map[string]time.Duration) (Policy, error) {
	merged := make(map[string]time.Duration, len(p.ttls)+len(overrides)+1)
	for k, v := range p.ttls {
		merged[k] = v
	}
	merged[DefaultResourceType] = p.defaultTTL
	for k, v := range overrides {
		merged[k] = v
	}
	return NewPolicy(merged)
}

// TTLFor returns the lifetime for a resource type, or the default when the
// type is not listed.
func (p Policy) TTLFor(resourceType string) time.Duration {
	if ttl, ok := p.ttls[resourceType]; ok {
		return ttl
	}
	return p.Default()
}

// TTLForInterval refines TTLFor for interval-parameterized series: it tries
// "resourceType:interval" first and falls back to TTLFor(resourceType).
func (p Policy) TTLForInterval(resourceType, interval string) time.Duration {
	if interval != "" {
		if ttl, ok := p.ttls[resourceType+":"+interval]; ok {
			return ttl
		}
	}
	return p.TTLFor(resourceType)
}

// Default returns the fallback TTL.
func (p Policy) Default() time.Duration {
	if p.defaultTTL <= 0 {
		return TTLDefault
	}
	return p.defaultTTL
}

// Len returns the number of explicitly mapped resource types.
func (p Policy) Len() int {
	return len(p.ttls)
}
