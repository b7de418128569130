package client

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewRequest(t *testing.T) {
	req := NewRequest("TIME_SERIES_DAILY", "symbol", "IBM", "outputsize", "compact", "dangling")

	if req.ResourceType != "TIME_SERIES_DAILY" {
		t.Errorf("ResourceType = %q", req.ResourceType)
	}
	if len(req.Params) != 2 {
		t.Errorf("len(Params) = %d, want 2", len(req.Params))
	}
	if req.Param("symbol") != "IBM" {
		t.Errorf("Param(symbol) = %q, want IBM", req.Param("symbol"))
	}
}

func TestResourceRequest_Query(t *testing.T) {
	req := ResourceRequest{
		ResourceType: "TIME_SERIES_INTRADAY",
		Params: map[string]any{
			"symbol":   "IBM",
			"interval": "5min",
			"adjusted": true,
			"limit":    10,
			"price":    decimal.RequireFromString("101.50"),
			"month":    nil,
		},
	}

	q := req.Query("demo")

	tests := map[string]string{
		"function": "TIME_SERIES_INTRADAY",
		"apikey":   "demo",
		"datatype": "json",
		"symbol":   "IBM",
		"interval": "5min",
		"adjusted": "true",
		"limit":    "10",
		"price":    "101.5",
	}
	for key, want := range tests {
		if got := q.Get(key); got != want {
			t.Errorf("Query()[%s] = %q, want %q", key, got, want)
		}
	}
	if q.Has("month") {
		t.Error("nil params must be omitted from the query")
	}
}

func TestResourceRequest_Query_DatatypeOverride(t *testing.T) {
	req := NewRequest("TIME_SERIES_DAILY", "symbol", "IBM", "datatype", "csv")

	if got := req.Query("k").Get("datatype"); got != "csv" {
		t.Errorf("datatype = %q, want csv", got)
	}
}

func TestResourceRequest_Query_ReservedParamsIgnored(t *testing.T) {
	req := NewRequest("GLOBAL_QUOTE", "function", "OTHER", "apikey", "leak")

	q := req.Query("real")
	if q.Get("function") != "GLOBAL_QUOTE" || q.Get("apikey") != "real" {
		t.Errorf("reserved params overridden: %v", q)
	}
}

func TestResourceRequest_TypedNilAbsent(t *testing.T) {
	var month *string
	var strike *decimal.Decimal
	req := NewRequest("HISTORICAL_OPTIONS", "symbol", "IBM", "month", month, "strike", strike)

	q := req.Query("k")
	if q.Has("month") || q.Has("strike") {
		t.Errorf("typed nil params sent upstream: %v", q)
	}
	if got := req.Param("month"); got != "" {
		t.Errorf("Param(month) = %q, want empty", got)
	}
	if req.Fingerprint() != NewRequest("HISTORICAL_OPTIONS", "symbol", "IBM").Fingerprint() {
		t.Errorf("typed nil params changed fingerprint: %q", req.Fingerprint())
	}
}

func TestResourceRequest_PointerParams(t *testing.T) {
	date := "2024-01-19"
	limit := 25
	req := NewRequest("HISTORICAL_OPTIONS", "symbol", "IBM", "date", &date, "limit", &limit)

	q := req.Query("k")
	if q.Get("date") != "2024-01-19" || q.Get("limit") != "25" {
		t.Errorf("pointer params not dereferenced: %v", q)
	}
	if got := req.Param("date"); got != "2024-01-19" {
		t.Errorf("Param(date) = %q", got)
	}
}

func TestResourceRequest_Fingerprint(t *testing.T) {
	a := NewRequest("GLOBAL_QUOTE", "symbol", "IBM", "datatype", "json")
	b := NewRequest("GLOBAL_QUOTE", "datatype", "json", "symbol", "IBM")

	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("Fingerprint differs by param order: %q vs %q", a.Fingerprint(), b.Fingerprint())
	}
	if want := `GLOBAL_QUOTE::{"datatype":"json","symbol":"IBM"}`; a.Fingerprint() != want {
		t.Errorf("Fingerprint() = %q, want %q", a.Fingerprint(), want)
	}
}
