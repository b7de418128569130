package options

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var filteredRatio = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "av_options_filtered_ratio",
	Help:    "Fraction of option contracts surviving the filter pipeline",
	Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 0.75, 1},
})

// Result is the filtered chain with its before/after sizes.
type Result struct {
	Contracts     []OptionContract `json:"data"`
	FilteredCount int              `json:"filtered_count"`
	TotalCount    int              `json:"total_count"`
}

// Apply runs every stage in fixed order: type, open interest, volume,
// expiration window, strike proximity. The input slice is not modified.
func Apply(contracts []OptionContract, criteria Criteria, queryDate time.Time) Result {
	out := FilterByType(contracts, criteria.OptionType)
	out = FilterMinOpenInterest(out, criteria.MinOpenInterest)
	out = FilterMinVolume(out, criteria.MinVolume)
	out = FilterExpirationWindow(out, criteria.ExpirationMonthsOffset, queryDate)
	out = FilterStrikeProximity(out, criteria.StrikeProximityCount, criteria.CurrentPrice)

	if out == nil {
		out = []OptionContract{}
	}
	if len(contracts) > 0 {
		filteredRatio.Observe(float64(len(out)) / float64(len(contracts)))
	}

	return Result{
		Contracts:     out,
		FilteredCount: len(out),
		TotalCount:    len(contracts),
	}
}
