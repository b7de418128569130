package client

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/Sternrassler/alphavantage-client/pkg/cache"
	"github.com/shopspring/decimal"
)

// Reserved upstream query parameters.
const (
	paramFunction = "function"
	paramAPIKey   = "apikey"
	paramDataType = "datatype"
	paramInterval = "interval"
)

// ResourceRequest is a single logical upstream request.
type ResourceRequest struct {
	// ResourceType is the upstream function (e.g., "GLOBAL_QUOTE")
	ResourceType string

	// Params are the upstream parameters, excluding the function itself.
	// Values may be strings, numbers, bools or decimals, or pointers to them.
	// nil and typed nil values are absent.
	Params map[string]any
}

// NewRequest builds a request from alternating key/value pairs.
// Odd trailing keys are ignored.
func NewRequest(resourceType string, keyvals ...any) ResourceRequest {
	params := make(map[string]any, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		params[key] = keyvals[i+1]
	}
	return ResourceRequest{ResourceType: resourceType, Params: params}
}

// Fingerprint returns the cache key for the request.
func (r ResourceRequest) Fingerprint() string {
	return cache.Canonicalize(r.ResourceType, r.Params)
}

// Param returns a parameter rendered as upstream text, or "" when absent.
func (r ResourceRequest) Param(name string) string {
	v, ok := cache.ParamValue(r.Params[name])
	if !ok {
		return ""
	}
	return formatParam(v)
}

// Query translates the request into the upstream query representation.
// datatype defaults to json unless the caller set it.
func (r ResourceRequest) Query(apiKey string) url.Values {
	q := url.Values{}
	q.Set(paramFunction, r.ResourceType)
	q.Set(paramAPIKey, apiKey)
	q.Set(paramDataType, "json")

	for key, value := range r.Params {
		if key == paramFunction || key == paramAPIKey {
			continue
		}
		resolved, ok := cache.ParamValue(value)
		if !ok {
			continue
		}
		q.Set(key, formatParam(resolved))
	}
	return q
}

// formatParam renders a primitive value as upstream query text.
func formatParam(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case decimal.Decimal:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
