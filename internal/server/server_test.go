package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/alphavantage-client/internal/testutil"
	"github.com/Sternrassler/alphavantage-client/pkg/cache"
	"github.com/Sternrassler/alphavantage-client/pkg/client"
	"github.com/Sternrassler/alphavantage-client/pkg/ratelimit"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dailyBody = `{
	"Meta Data": {"2. Symbol": "IBM"},
	"Time Series (Daily)": {
		"2024-01-12": {"4. close": "165.80"},
		"2024-01-11": {"4. close": "162.16"},
		"2024-01-10": {"4. close": "161.23"}
	}
}`

const optionsBody = `{
	"endpoint": "Historical Options",
	"message": "success",
	"data": [
		{"contractID": "IBM240119C00100000", "symbol": "IBM", "expiration": "2024-01-19", "strike": "100.00", "type": "call", "volume": "40", "open_interest": "900", "date": "2024-01-15"},
		{"contractID": "IBM240119P00100000", "symbol": "IBM", "expiration": "2024-01-19", "strike": "100.00", "type": "put", "volume": "3", "open_interest": "120", "date": "2024-01-15"},
		{"contractID": "IBM240119C00130000", "symbol": "IBM", "expiration": "2024-01-19", "strike": "130.00", "type": "call", "volume": "0", "open_interest": "5", "date": "2024-01-15"}
	]
}`

type fixture struct {
	mock    *testutil.MockUpstream
	client  *client.Client
	tracker *ratelimit.Tracker
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mock := testutil.NewMockUpstream()
	t.Cleanup(mock.Close)

	tracker := ratelimit.NewTracker(ratelimit.NewMemoryStore(), zerolog.Nop())

	store, err := cache.NewLRU(cache.DefaultCapacity)
	require.NoError(t, err)

	cfg := client.DefaultConfig("test-key", store)
	cfg.BaseURL = mock.URL()
	cfg.Advisories = tracker
	c, err := client.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	s := New(Config{Addr: ":0", Client: c, Advisories: tracker, Log: zerolog.Nop()})
	return &fixture{mock: mock, client: c, tracker: tracker, handler: s.Handler()}
}

func (f *fixture) do(t *testing.T, method, target string, body io.Reader, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestID_Propagated(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", nil, RequestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestReady(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var state ratelimit.AdvisoryState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.True(t, state.IsHealthy)

	require.NoError(t, f.tracker.RecordAdvisory(context.Background(), "GLOBAL_QUOTE", "slow down"))

	w = f.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.False(t, state.IsHealthy)
	assert.Equal(t, "slow down", state.LastMessage)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodGet, "/api/v1/query?function=GLOBAL_QUOTE&symbol=IBM", nil)

	w := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "av_upstream_requests_total")
}

func TestQuery_ForwardsAndCaches(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/query?function=GLOBAL_QUOTE&symbol=IBM&apikey=leak", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "Global Quote")

	last := f.mock.GetLastQuery()
	assert.Equal(t, "GLOBAL_QUOTE", last.Get("function"))
	assert.Equal(t, "IBM", last.Get("symbol"))
	assert.Equal(t, "test-key", last.Get("apikey"))

	// Same request again is served from the cache
	w = f.do(t, http.MethodGet, "/api/v1/query?symbol=IBM&function=GLOBAL_QUOTE", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.mock.GetRequestCount())
}

func TestQuery_Limit(t *testing.T) {
	f := newFixture(t)
	f.mock.SetResponse("TIME_SERIES_DAILY", testutil.NewJSONResponse(dailyBody))

	w := f.do(t, http.MethodGet, "/api/v1/query?function=TIME_SERIES_DAILY&symbol=IBM&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	series := body["Time Series (Daily)"]
	assert.Len(t, series, 2)
	assert.Contains(t, series, "2024-01-12")
	assert.Contains(t, series, "2024-01-11")

	// The cached payload keeps all entries
	w = f.do(t, http.MethodGet, "/api/v1/query?function=TIME_SERIES_DAILY&symbol=IBM", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body["Time Series (Daily)"], 3)
	assert.Equal(t, 1, f.mock.GetRequestCount())
}

func TestQuery_Errors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		setup      func(m *testutil.MockUpstream)
		wantStatus int
		wantClass  string
	}{
		{
			name:       "missing function",
			target:     "/api/v1/query?symbol=IBM",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid limit",
			target:     "/api/v1/query?function=GLOBAL_QUOTE&limit=ten",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "error sentinel",
			target: "/api/v1/query?function=OVERVIEW&symbol=NOPE",
			setup: func(m *testutil.MockUpstream) {
				m.SetResponse("OVERVIEW", testutil.NewErrorMessageResponse("Invalid API call."))
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantClass:  "api",
		},
		{
			name:   "upstream failure",
			target: "/api/v1/query?function=OVERVIEW&symbol=IBM",
			setup: func(m *testutil.MockUpstream) {
				m.SetResponse("OVERVIEW", testutil.NewServerErrorResponse())
			},
			wantStatus: http.StatusBadGateway,
			wantClass:  "server",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f.mock)
			}

			w := f.do(t, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.wantStatus, w.Code)

			body := decodeError(t, w)
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, tt.wantClass, body.Class)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestQuery_AdvisoryHeader(t *testing.T) {
	f := newFixture(t)
	f.mock.SetResponse("GLOBAL_QUOTE", testutil.NewNoteResponse("Thank you for using Alpha Vantage!"))

	w := f.do(t, http.MethodGet, "/api/v1/query?function=GLOBAL_QUOTE&symbol=IBM", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Thank you for using Alpha Vantage!", w.Header().Get(AdvisoryHeader))
	assert.False(t, f.tracker.Healthy(context.Background()))
}

func TestQuery_TextPayload(t *testing.T) {
	f := newFixture(t)
	f.mock.SetResponse("TIME_SERIES_DAILY", testutil.NewCSVResponse("timestamp,close\n2024-01-12,165.80\n"))

	w := f.do(t, http.MethodGet, "/api/v1/query?function=TIME_SERIES_DAILY&symbol=IBM&datatype=csv", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	assert.Equal(t, "timestamp,close\n2024-01-12,165.80\n", w.Body.String())
}

func TestOptions(t *testing.T) {
	f := newFixture(t)
	f.mock.SetResponse("HISTORICAL_OPTIONS", testutil.NewJSONResponse(optionsBody))

	w := f.do(t, http.MethodGet, "/api/v1/options/IBM?date=2024-01-15&type=call&min_open_interest=100", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []struct {
			ContractID string `json:"contractID"`
		} `json:"data"`
		FilteredCount int `json:"filtered_count"`
		TotalCount    int `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.TotalCount)
	assert.Equal(t, 1, body.FilteredCount)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "IBM240119C00100000", body.Data[0].ContractID)

	last := f.mock.GetLastQuery()
	assert.Equal(t, "IBM", last.Get("symbol"))
	assert.Equal(t, "2024-01-15", last.Get("date"))
}

func TestOptions_BadRequest(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"bad threshold", "/api/v1/options/IBM?min_volume=lots"},
		{"bad type", "/api/v1/options/IBM?type=straddle"},
		{"bad strike count", "/api/v1/options/IBM?strike_count=two"},
		{"bad date", "/api/v1/options/IBM?date=15/01/2024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			w := f.do(t, http.MethodGet, tt.target, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, 0, f.mock.GetRequestCount())
		})
	}
}

func TestBatch(t *testing.T) {
	f := newFixture(t)
	f.mock.SetResponse("OVERVIEW", testutil.NewErrorMessageResponse("Invalid API call."))

	body := `[
		{"function": "GLOBAL_QUOTE", "params": {"symbol": "IBM"}},
		{"function": "OVERVIEW", "params": {"symbol": "NOPE"}},
		{"params": {"symbol": "IBM"}}
	]`
	w := f.do(t, http.MethodPost, "/api/v1/batch", strings.NewReader(body), "Content-Type", "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	var results []struct {
		Index    int             `json:"index"`
		Function string          `json:"function"`
		Status   int             `json:"status"`
		Data     json.RawMessage `json:"data"`
		Error    string          `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 3)

	assert.Equal(t, http.StatusOK, results[0].Status)
	assert.Contains(t, string(results[0].Data), "Global Quote")
	assert.Equal(t, http.StatusUnprocessableEntity, results[1].Status)
	assert.Contains(t, results[1].Error, "Invalid API call.")
	assert.Equal(t, http.StatusBadRequest, results[2].Status)

	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
}

func TestBatch_BadBody(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/batch", strings.NewReader(`{"function":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/batch", strings.NewReader(`[]`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var big bytes.Buffer
	big.WriteString("[")
	for i := 0; i <= maxBatchSize; i++ {
		if i > 0 {
			big.WriteString(",")
		}
		big.WriteString(`{"function":"GLOBAL_QUOTE"}`)
	}
	big.WriteString("]")
	w = f.do(t, http.MethodPost, "/api/v1/batch", &big)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClearCache(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodGet, "/api/v1/query?function=GLOBAL_QUOTE&symbol=IBM", nil)
	f.do(t, http.MethodGet, "/api/v1/query?function=GLOBAL_QUOTE&symbol=MSFT", nil)
	require.Equal(t, 2, f.client.GetCache().Len())

	w := f.do(t, http.MethodDelete, "/api/v1/cache?function=GLOBAL_QUOTE&symbol=IBM", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, f.client.IsCached(client.NewRequest("GLOBAL_QUOTE", "symbol", "IBM")))
	assert.True(t, f.client.IsCached(client.NewRequest("GLOBAL_QUOTE", "symbol", "MSFT")))

	w = f.do(t, http.MethodDelete, "/api/v1/cache", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, f.client.GetCache().Len())
}

func TestClearCache_IgnoresProxyParams(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodGet, "/api/v1/query?function=GLOBAL_QUOTE&symbol=IBM&limit=5", nil)
	req := client.NewRequest("GLOBAL_QUOTE", "symbol", "IBM")
	require.True(t, f.client.IsCached(req))

	w := f.do(t, http.MethodDelete, "/api/v1/cache?function=GLOBAL_QUOTE&symbol=IBM&limit=5&apikey=other", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, f.client.IsCached(req), "limit and apikey must not change the invalidated fingerprint")
}

func TestZstdCompression(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/query?function=GLOBAL_QUOTE&symbol=IBM", nil, "Accept-Encoding", "zstd")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "zstd", w.Header().Get("Content-Encoding"))

	decoder, err := zstd.NewReader(w.Body)
	require.NoError(t, err)
	defer decoder.Close()

	plain, err := io.ReadAll(decoder)
	require.NoError(t, err)
	assert.Contains(t, string(plain), "Global Quote")
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{client.ErrMissingResourceType, http.StatusBadRequest},
		{&client.APIError{ResourceType: "OVERVIEW", Message: "bad"}, http.StatusUnprocessableEntity},
		{&client.TransportError{Class: client.ErrorClassNetwork}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusForError(tt.err), "error %v", tt.err)
	}
}

func TestShutdown(t *testing.T) {
	f := newFixture(t)
	s := New(Config{Addr: "127.0.0.1:0", Client: f.client, Log: zerolog.Nop()})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}
