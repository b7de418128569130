// Package shape derives response views from cached payloads. Cached payloads
// are never modified; every function here works on a copy.
package shape

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Jeffail/gabs/v2"
	"github.com/Sternrassler/alphavantage-client/pkg/client"
)

// LimitSeries returns a copy of p with every date-keyed series reduced to
// its n most recent entries. Dates are ISO formatted, so lexical order is
// chronological. n <= 0 or a non-series payload returns p unchanged.
func LimitSeries(p *client.Payload, n int) (*client.Payload, error) {
	if p == nil || n <= 0 || p.Kind != client.KindTimeSeries || p.Doc == nil {
		return p, nil
	}

	root, ok := p.Doc.Data().(map[string]any)
	if !ok {
		return p, nil
	}

	out := gabs.New()
	for key, value := range root {
		series, isSeries := value.(map[string]any)
		if !isSeries || !isSeriesKey(p, key) {
			if _, err := out.Set(value, key); err != nil {
				return nil, fmt.Errorf("copy %q: %w", key, err)
			}
			continue
		}
		if _, err := out.Set(latest(series, n), key); err != nil {
			return nil, fmt.Errorf("truncate %q: %w", key, err)
		}
	}

	cp := *p
	cp.Doc = out
	return &cp, nil
}

// Render produces the indented JSON returned to callers. Text payloads are
// returned raw.
func Render(p *client.Payload) (string, error) {
	if p == nil {
		return "null", nil
	}
	if p.Kind == client.KindText || p.Doc == nil {
		return p.Text, nil
	}
	b, err := json.MarshalIndent(p.Doc.Data(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("render payload: %w", err)
	}
	return string(b), nil
}

// latest copies the n greatest keys of series.
func latest(series map[string]any, n int) map[string]any {
	keys := make([]string, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if len(keys) > n {
		keys = keys[:n]
	}

	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = series[k]
	}
	return out
}

func isSeriesKey(p *client.Payload, key string) bool {
	for _, k := range p.SeriesKeys() {
		if k == key {
			return true
		}
	}
	return false
}
