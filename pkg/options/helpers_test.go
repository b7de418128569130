package options

import (
	"time"

	"github.com/shopspring/decimal"
)

// rec builds an upstream-shaped record.
func rec(id, typ, strike, expiration, oi, volume string) map[string]any {
	return map[string]any{
		"contractID":    id,
		"symbol":        "IBM",
		"expiration":    expiration,
		"strike":        strike,
		"type":          typ,
		"last":          "1.00",
		"bid":           "0.95",
		"ask":           "1.05",
		"volume":        volume,
		"open_interest": oi,
		"date":          "2024-01-15",
		"delta":         "0.5",
	}
}

func contractsOf(records ...map[string]any) []OptionContract {
	out := make([]OptionContract, 0, len(records))
	for _, r := range records {
		out = append(out, ContractFromRecord(r))
	}
	return out
}

func ids(contracts []OptionContract) []string {
	out := make([]string, 0, len(contracts))
	for _, c := range contracts {
		out = append(out, c.ContractID)
	}
	return out
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func intp(n int) *int {
	return &n
}

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}
