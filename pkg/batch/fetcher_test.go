package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/alphavantage-client/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher echoes the symbol and fails for symbols in fail.
type stubFetcher struct {
	delay    time.Duration
	fail     map[string]bool
	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	calls    int
}

func (s *stubFetcher) FetchAPIData(ctx context.Context, req client.ResourceRequest) (*client.Payload, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	symbol := req.Param("symbol")
	if s.fail[symbol] {
		return nil, &client.APIError{ResourceType: req.ResourceType, Message: "Invalid API call."}
	}
	return &client.Payload{ResourceType: req.ResourceType, Kind: client.KindRecord, Text: symbol}, nil
}

func (s *stubFetcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func requestsFor(symbols ...string) []client.ResourceRequest {
	out := make([]client.ResourceRequest, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, client.NewRequest("GLOBAL_QUOTE", "symbol", s))
	}
	return out
}

func TestNewFetcher_Defaults(t *testing.T) {
	f := NewFetcher(&stubFetcher{}, Config{})

	assert.Equal(t, 5, f.config.MaxConcurrency)
	assert.Equal(t, 30*time.Second, f.config.Timeout)
}

func TestFetchAll_PreservesOrder(t *testing.T) {
	stub := &stubFetcher{delay: time.Millisecond}
	f := NewFetcher(stub, DefaultConfig())

	symbols := []string{"IBM", "MSFT", "AAPL", "NVDA", "TSLA", "AMZN", "GOOG"}
	results := f.FetchAll(context.Background(), requestsFor(symbols...))

	require.Len(t, results, len(symbols))
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, i, r.Index)
		assert.Equal(t, symbols[i], r.Payload.Text)
	}
}

func TestFetchAll_FailureIsolated(t *testing.T) {
	stub := &stubFetcher{fail: map[string]bool{"BAD": true}}
	f := NewFetcher(stub, DefaultConfig())

	results := f.FetchAll(context.Background(), requestsFor("IBM", "BAD", "MSFT"))

	assert.NoError(t, results[0].Err)
	assert.True(t, client.IsAPIError(results[1].Err))
	assert.NoError(t, results[2].Err)
	assert.Equal(t, 3, stub.callCount())
}

func TestFetchAll_BoundedConcurrency(t *testing.T) {
	stub := &stubFetcher{delay: 10 * time.Millisecond}
	f := NewFetcher(stub, Config{MaxConcurrency: 2, Timeout: time.Second})

	f.FetchAll(context.Background(), requestsFor("A", "B", "C", "D", "E", "F"))

	assert.LessOrEqual(t, stub.peak.Load(), int32(2))
	assert.Equal(t, 6, stub.callCount())
}

func TestFetchAll_CancelledContext(t *testing.T) {
	stub := &stubFetcher{}
	f := NewFetcher(stub, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := f.FetchAll(ctx, requestsFor("IBM", "MSFT"))
	for _, r := range results {
		assert.True(t, errors.Is(r.Err, context.Canceled))
	}
	assert.Equal(t, 0, stub.callCount())
}

func TestFetchAll_Empty(t *testing.T) {
	f := NewFetcher(&stubFetcher{}, DefaultConfig())
	assert.Empty(t, f.FetchAll(context.Background(), nil))
}
