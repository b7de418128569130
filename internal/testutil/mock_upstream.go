// Package testutil provides testing utilities for the Alpha Vantage client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock upstream response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a configurable mock Alpha Vantage server. Handlers are
// selected by the "function" query parameter.
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount int
	FunctionHits map[string]int
	LastQuery    url.Values
}

// NewMockUpstream creates a new mock upstream server.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		handlers:     make(map[string]func(w http.ResponseWriter, r *http.Request)),
		FunctionHits: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		function := query.Get("function")

		mock.mu.Lock()
		mock.RequestCount++
		mock.FunctionHits[function]++
		mock.LastQuery = query
		handler, exists := mock.handlers[function]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.FunctionHits = make(map[string]int)
	m.LastQuery = nil
}

// SetHandler sets a custom handler for an upstream function.
func (m *MockUpstream) SetHandler(function string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[function] = handler
}

// SetResponse configures a simple response for an upstream function.
func (m *MockUpstream) SetResponse(function string, resp MockResponse) {
	m.SetHandler(function, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetSequence serves the given responses in order for a function, repeating
// the last one once exhausted.
func (m *MockUpstream) SetSequence(function string, responses ...MockResponse) {
	var mu sync.Mutex
	next := 0
	m.SetHandler(function, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[next]
		if next < len(responses)-1 {
			next++
		}
		mu.Unlock()

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		w.Write([]byte(resp.Body))
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockUpstream) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetFunctionCount returns the number of requests for one upstream function.
func (m *MockUpstream) GetFunctionCount(function string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.FunctionHits[function]
}

// GetLastQuery returns the query of the most recent request.
func (m *MockUpstream) GetLastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastQuery
}

// defaultHandler echoes the function and symbol as a minimal quote.
func (m *MockUpstream) defaultHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"Global Quote": {"01. symbol": %q, "function": %q}}`, query.Get("symbol"), query.Get("function"))
}

// NewJSONResponse creates a standard 200 OK JSON response.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewErrorMessageResponse creates a 200 OK response carrying the hard-error sentinel.
func NewErrorMessageResponse(message string) MockResponse {
	return NewJSONResponse(fmt.Sprintf(`{"Error Message": %q}`, message))
}

// NewNoteResponse creates a 200 OK response carrying the advisory sentinel.
func NewNoteResponse(note string) MockResponse {
	return NewJSONResponse(fmt.Sprintf(`{"Note": %q}`, note))
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewCSVResponse creates a 200 OK text response.
func NewCSVResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/x-download",
		},
	}
}
