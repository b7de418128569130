// Package options filters historical option chains. Contracts are decoded
// with exact decimals and narrowed by a fixed sequence of stages: type,
// minimum open interest, minimum volume, expiration window and strike
// proximity.
package options

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/shopspring/decimal"
)

// DateLayout is the upstream calendar date format.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidDecimal indicates numeric text that is not an exact decimal.
	ErrInvalidDecimal = errors.New("invalid decimal")

	// ErrInvalidDate indicates a date that is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date")

	// ErrNoChain indicates a payload without a data array.
	ErrNoChain = errors.New("payload has no option chain")
)

// Contract types.
const (
	TypeCall = "call"
	TypePut  = "put"
	TypeAll  = "ALL"
)

// Greeks are the sensitivities reported per contract.
type Greeks struct {
	ImpliedVolatility decimal.NullDecimal
	Delta             decimal.NullDecimal
	Gamma             decimal.NullDecimal
	Theta             decimal.NullDecimal
	Vega              decimal.NullDecimal
	Rho               decimal.NullDecimal
}

// OptionContract is one row of a historical option chain. Numeric fields
// that fail to parse are left invalid (Valid == false) and fail every
// comparison.
type OptionContract struct {
	ContractID   string
	Symbol       string
	Expiration   string
	Strike       decimal.NullDecimal
	Type         string
	Last         decimal.NullDecimal
	Mark         decimal.NullDecimal
	Bid          decimal.NullDecimal
	Ask          decimal.NullDecimal
	Volume       decimal.NullDecimal
	OpenInterest decimal.NullDecimal
	Date         string
	Greeks

	// raw is the upstream record, re-emitted unchanged by MarshalJSON
	raw map[string]any
}

// ContractFromRecord builds a contract from one upstream record.
func ContractFromRecord(record map[string]any) OptionContract {
	return OptionContract{
		ContractID:   text(record["contractID"]),
		Symbol:       text(record["symbol"]),
		Expiration:   text(record["expiration"]),
		Strike:       nullDecimal(record["strike"]),
		Type:         text(record["type"]),
		Last:         nullDecimal(record["last"]),
		Mark:         nullDecimal(record["mark"]),
		Bid:          nullDecimal(record["bid"]),
		Ask:          nullDecimal(record["ask"]),
		Volume:       nullDecimal(record["volume"]),
		OpenInterest: nullDecimal(record["open_interest"]),
		Date:         text(record["date"]),
		Greeks: Greeks{
			ImpliedVolatility: nullDecimal(record["implied_volatility"]),
			Delta:             nullDecimal(record["delta"]),
			Gamma:             nullDecimal(record["gamma"]),
			Theta:             nullDecimal(record["theta"]),
			Vega:              nullDecimal(record["vega"]),
			Rho:               nullDecimal(record["rho"]),
		},
		raw: record,
	}
}

// DecodeChain decodes the data array of a HISTORICAL_OPTIONS payload.
// Non-object rows are skipped.
func DecodeChain(doc *gabs.Container) ([]OptionContract, error) {
	if doc == nil || !doc.Exists("data") {
		return nil, ErrNoChain
	}
	rows := doc.Search("data").Children()
	contracts := make([]OptionContract, 0, len(rows))
	for _, row := range rows {
		record, ok := row.Data().(map[string]any)
		if !ok {
			continue
		}
		contracts = append(contracts, ContractFromRecord(record))
	}
	return contracts, nil
}

// ExpirationDate parses the expiration as a UTC calendar date.
func (c OptionContract) ExpirationDate() (time.Time, error) {
	return ParseDate(c.Expiration)
}

// MarshalJSON emits the upstream record unchanged.
func (c OptionContract) MarshalJSON() ([]byte, error) {
	if c.raw != nil {
		return json.Marshal(c.raw)
	}
	return json.Marshal(map[string]any{
		"contractID":    c.ContractID,
		"symbol":        c.Symbol,
		"expiration":    c.Expiration,
		"strike":        decimalText(c.Strike),
		"type":          c.Type,
		"volume":        decimalText(c.Volume),
		"open_interest": decimalText(c.OpenInterest),
		"date":          c.Date,
	})
}

// ParseDecimal parses exact decimal text.
func ParseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidDecimal, s)
	}
	return d, nil
}

// ParseDate parses YYYY-MM-DD (or an RFC 3339 timestamp) to the start of
// that calendar day in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return startOfDay(t), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nullDecimal(v any) decimal.NullDecimal {
	switch val := v.(type) {
	case string:
		d, err := ParseDecimal(val)
		if err != nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d)
	case json.Number:
		d, err := ParseDecimal(val.String())
		if err != nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d)
	default:
		return decimal.NullDecimal{}
	}
}

func text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func decimalText(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}
