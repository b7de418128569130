package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// KeySeparator joins the resource type and the serialized parameters.
// Neither upstream function names nor JSON objects contain it.
const KeySeparator = "::"

// CacheKey identifies a cached upstream response.
type CacheKey struct {
	// ResourceType is the upstream function (e.g., "GLOBAL_QUOTE")
	ResourceType string

	// Params are the request parameters, excluding the resource type itself.
	// Nil values, including typed nil pointers, maps and slices, are absent.
	Params map[string]any
}

// String generates a deterministic cache key string.
// Format: RESOURCE_TYPE::{"param1":val1,"param2":val2}
//
// Example:
//
//	GLOBAL_QUOTE::{"symbol":"IBM"}
func (k CacheKey) String() string {
	return Canonicalize(k.ResourceType, k.Params)
}

// Canonicalize builds the fingerprint for a resource type and parameter set.
// Parameters are sorted by key and absent values are dropped, so two
// requests that differ only in parameter order or in omitted optionals share
// a fingerprint. Pointers are dereferenced before encoding.
func Canonicalize(resourceType string, params map[string]any) string {
	keys := make([]string, 0, len(params))
	values := make(map[string]any, len(params))
	for key, value := range params {
		resolved, ok := ParamValue(value)
		if !ok {
			continue
		}
		keys = append(keys, key)
		values[key] = resolved
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(resourceType)
	b.WriteString(KeySeparator)
	b.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(key))
		b.WriteByte(':')
		b.WriteString(encodeValue(values[key]))
	}
	b.WriteByte('}')

	return b.String()
}

// ParamValue resolves a parameter value. It reports false for nil and for
// typed nil pointers, interfaces, maps, slices, funcs and channels. Non-nil
// pointers are followed to the value they point at.
func ParamValue(v any) (any, bool) {
	for v != nil {
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Pointer, reflect.Interface:
			if rv.IsNil() {
				return nil, false
			}
			v = rv.Elem().Interface()
		case reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			if rv.IsNil() {
				return nil, false
			}
			return v, true
		default:
			return v, true
		}
	}
	return nil, false
}

// encodeValue renders a primitive parameter value as JSON text.
func encodeValue(v any) string {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val)
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
		return strconv.Quote(val.String())
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return strconv.Quote(fmt.Sprint(val))
		}
		return string(data)
	}
}
