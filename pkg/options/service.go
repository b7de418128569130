package options

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/alphavantage-client/pkg/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ResourceType is the upstream function serving option chains.
const ResourceType = "HISTORICAL_OPTIONS"

// Service fetches option chains through a caching fetcher and filters them.
// The full chain is what gets cached; filtered results are not.
type Service struct {
	fetcher client.Fetcher
	logger  zerolog.Logger
}

// NewService creates a new options service.
func NewService(fetcher client.Fetcher) *Service {
	return &Service{
		fetcher: fetcher,
		logger:  log.With().Str("component", "av-options").Logger(),
	}
}

// Chain fetches the chain for symbol on date ("" for the latest session)
// and applies criteria.
func (s *Service) Chain(ctx context.Context, symbol, date string, criteria Criteria) (*Result, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	var queryDate time.Time
	req := client.NewRequest(ResourceType, "symbol", symbol)
	if date != "" {
		d, err := ParseDate(date)
		if err != nil {
			return nil, err
		}
		queryDate = d
		req.Params["date"] = date
	}

	payload, err := s.fetcher.FetchAPIData(ctx, req)
	if err != nil {
		return nil, err
	}

	contracts, err := DecodeChain(payload.Doc)
	if err != nil {
		return nil, fmt.Errorf("decode %s for %s: %w", ResourceType, symbol, err)
	}

	result := Apply(contracts, criteria, queryDate)

	s.logger.Debug().
		Str("symbol", symbol).
		Int("filtered_count", result.FilteredCount).
		Int("total_count", result.TotalCount).
		Msg("Option chain filtered")

	return &result, nil
}
