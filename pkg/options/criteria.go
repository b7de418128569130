package options

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidOptionType indicates a type other than call, put or ALL.
var ErrInvalidOptionType = errors.New("option type must be call, put or ALL")

// Query parameter names accepted by CriteriaFromQuery.
const (
	QueryType             = "type"
	QueryMinOpenInterest  = "min_open_interest"
	QueryMinVolume        = "min_volume"
	QueryExpirationMonths = "expiration_months"
	QueryStrikeCount      = "strike_count"
	QueryPrice            = "price"
)

// Criteria selects the stages to run. A nil field disables its stage.
// StrikeProximityCount without CurrentPrice is a no-op.
type Criteria struct {
	OptionType             string
	MinOpenInterest        *decimal.Decimal
	MinVolume              *decimal.Decimal
	ExpirationMonthsOffset *int
	StrikeProximityCount   *int
	CurrentPrice           *decimal.Decimal
}

// IsEmpty reports whether no stage is enabled.
func (c Criteria) IsEmpty() bool {
	return (c.OptionType == "" || strings.EqualFold(c.OptionType, TypeAll)) &&
		c.MinOpenInterest == nil &&
		c.MinVolume == nil &&
		c.ExpirationMonthsOffset == nil &&
		(c.StrikeProximityCount == nil || c.CurrentPrice == nil)
}

// Validate checks the option type.
func (c Criteria) Validate() error {
	switch strings.ToLower(c.OptionType) {
	case "", TypeCall, TypePut, strings.ToLower(TypeAll):
		return nil
	default:
		return fmt.Errorf("%w (got %q)", ErrInvalidOptionType, c.OptionType)
	}
}

// CriteriaFromQuery parses criteria from URL query values. Absent or empty
// values leave their stage disabled.
func CriteriaFromQuery(q url.Values) (Criteria, error) {
	var c Criteria
	var err error

	c.OptionType = q.Get(QueryType)
	if err := c.Validate(); err != nil {
		return Criteria{}, err
	}

	if c.MinOpenInterest, err = optionalDecimal(q, QueryMinOpenInterest); err != nil {
		return Criteria{}, err
	}
	if c.MinVolume, err = optionalDecimal(q, QueryMinVolume); err != nil {
		return Criteria{}, err
	}
	if c.CurrentPrice, err = optionalDecimal(q, QueryPrice); err != nil {
		return Criteria{}, err
	}
	if c.ExpirationMonthsOffset, err = optionalInt(q, QueryExpirationMonths); err != nil {
		return Criteria{}, err
	}
	if c.StrikeProximityCount, err = optionalInt(q, QueryStrikeCount); err != nil {
		return Criteria{}, err
	}

	return c, nil
}

func optionalDecimal(q url.Values, name string) (*decimal.Decimal, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	d, err := ParseDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &d, nil
}

func optionalInt(q url.Values, name string) (*int, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid integer %q", name, raw)
	}
	return &n, nil
}
