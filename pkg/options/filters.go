package options

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// now is replaced in tests.
var now = time.Now

// FilterByType keeps contracts of the given type. "" and ALL keep everything.
// Matching ignores case.
func FilterByType(contracts []OptionContract, optionType string) []OptionContract {
	if optionType == "" || strings.EqualFold(optionType, TypeAll) {
		return contracts
	}
	return keep(contracts, func(c OptionContract) bool {
		return strings.EqualFold(c.Type, optionType)
	})
}

// FilterMinOpenInterest keeps contracts whose open interest is >= min.
// Unparsable open interest never passes.
func FilterMinOpenInterest(contracts []OptionContract, min *decimal.Decimal) []OptionContract {
	if min == nil {
		return contracts
	}
	return keep(contracts, func(c OptionContract) bool {
		return atLeast(c.OpenInterest, *min)
	})
}

// FilterMinVolume keeps contracts whose volume is >= min.
// Unparsable volume never passes.
func FilterMinVolume(contracts []OptionContract, min *decimal.Decimal) []OptionContract {
	if min == nil {
		return contracts
	}
	return keep(contracts, func(c OptionContract) bool {
		return atLeast(c.Volume, *min)
	})
}

// FilterExpirationWindow keeps contracts expiring between the base date and
// the last day of the month monthsOffset months later, both inclusive.
// The base date is queryDate, else the first contract's quote date, else
// today; all comparisons are on UTC calendar days. A negative offset is a
// no-op. Unparsable expirations are dropped.
func FilterExpirationWindow(contracts []OptionContract, monthsOffset *int, queryDate time.Time) []OptionContract {
	if monthsOffset == nil || *monthsOffset < 0 {
		return contracts
	}

	base := baseDate(contracts, queryDate)
	end := endOfWindow(base, *monthsOffset)

	return keep(contracts, func(c OptionContract) bool {
		exp, err := c.ExpirationDate()
		if err != nil {
			return false
		}
		return !exp.Before(base) && !exp.After(end)
	})
}

// FilterStrikeProximity keeps contracts whose strike is among the 2k+1
// distinct strikes nearest to price. Equidistant strikes rank lower strike
// first. Requires both k and price; k < 0 is a no-op. Contracts with an
// unparsable strike are dropped when the stage runs.
func FilterStrikeProximity(contracts []OptionContract, k *int, price *decimal.Decimal) []OptionContract {
	if k == nil || price == nil || *k < 0 {
		return contracts
	}

	selected := nearestStrikes(contracts, *price, 2*(*k)+1)

	return keep(contracts, func(c OptionContract) bool {
		if !c.Strike.Valid {
			return false
		}
		_, ok := selected[strikeKey(c.Strike.Decimal)]
		return ok
	})
}

// nearestStrikes returns the n distinct strikes closest to price.
func nearestStrikes(contracts []OptionContract, price decimal.Decimal, n int) map[string]struct{} {
	distinct := make(map[string]decimal.Decimal)
	for _, c := range contracts {
		if c.Strike.Valid {
			distinct[strikeKey(c.Strike.Decimal)] = c.Strike.Decimal
		}
	}

	strikes := make([]decimal.Decimal, 0, len(distinct))
	for _, s := range distinct {
		strikes = append(strikes, s)
	}
	sort.Slice(strikes, func(i, j int) bool {
		di := strikes[i].Sub(price).Abs()
		dj := strikes[j].Sub(price).Abs()
		if cmp := di.Cmp(dj); cmp != 0 {
			return cmp < 0
		}
		return strikes[i].LessThan(strikes[j])
	})

	if len(strikes) > n {
		strikes = strikes[:n]
	}

	selected := make(map[string]struct{}, len(strikes))
	for _, s := range strikes {
		selected[strikeKey(s)] = struct{}{}
	}
	return selected
}

// strikeKey normalizes a decimal so 100 and 100.00 are the same strike.
func strikeKey(d decimal.Decimal) string {
	return d.String()
}

func baseDate(contracts []OptionContract, queryDate time.Time) time.Time {
	if !queryDate.IsZero() {
		return startOfDay(queryDate)
	}
	if len(contracts) > 0 {
		if d, err := ParseDate(contracts[0].Date); err == nil {
			return d
		}
	}
	return startOfDay(now())
}

// endOfWindow is the last instant of the month monthsOffset months after base.
func endOfWindow(base time.Time, monthsOffset int) time.Time {
	// Day 0 of the following month is the last day of the target month
	return time.Date(base.Year(), base.Month()+time.Month(monthsOffset)+1, 0, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
}

func atLeast(v decimal.NullDecimal, min decimal.Decimal) bool {
	return v.Valid && v.Decimal.GreaterThanOrEqual(min)
}

func keep(contracts []OptionContract, pred func(OptionContract) bool) []OptionContract {
	out := make([]OptionContract, 0, len(contracts))
	for _, c := range contracts {
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}
