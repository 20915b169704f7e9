package calc

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	// DefaultThreshold is the relative-method success threshold.
	DefaultThreshold = decimal.NewFromInt(60)
	// DefaultLinkWeight applies to outcome links with no stored weight.
	DefaultLinkWeight = decimal.NewFromInt(1)
)

// ErrInvalidScore is returned by ParseScore for values that have no exact decimal form.
var ErrInvalidScore = errors.New("invalid score")

const (
	// scores outside 10^±maxScoreExponent cannot be percentages
	maxScoreExponent = 30
	maxScoreLength   = 64
)

//
// RoundScore rounds to two places, ties away from zero.
// Percentages are non-negative, so this is round-half-up:
// 59.995 -> 60.00, 59.994 -> 59.99.
//
func RoundScore(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

//
// ParseScore coerces v into an exact decimal.
// Floats go through their shortest decimal representation, so
// 59.995 stays 59.995 rather than its binary neighbour.
// nil, NaN, infinities, empty and non-numeric strings fail, as do
// values whose exponent is far outside any percentage.
//
func ParseScore(v interface{}) (decimal.Decimal, error) {
	d, err := parseScore(v)
	if err != nil {
		return decimal.Zero, err
	}
	if e := d.Exponent(); e < -maxScoreExponent || e > maxScoreExponent {
		return decimal.Zero, errors.Wrapf(ErrInvalidScore, "exponent %d out of range", e)
	}
	return d, nil
}

func parseScore(v interface{}) (decimal.Decimal, error) {
	switch s := v.(type) {
	case nil:
		return decimal.Zero, ErrInvalidScore
	case decimal.Decimal:
		return s, nil
	case *decimal.Decimal:
		if s == nil {
			return decimal.Zero, ErrInvalidScore
		}
		return *s, nil
	case decimal.NullDecimal:
		if !s.Valid {
			return decimal.Zero, ErrInvalidScore
		}
		return s.Decimal, nil
	case float64:
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return decimal.Zero, ErrInvalidScore
		}
		return decimal.NewFromFloat(s), nil
	case float32:
		f := float64(s)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, ErrInvalidScore
		}
		return decimal.NewFromFloat32(s), nil
	case int:
		return decimal.NewFromInt(int64(s)), nil
	case int8:
		return decimal.NewFromInt(int64(s)), nil
	case int16:
		return decimal.NewFromInt(int64(s)), nil
	case int32:
		return decimal.NewFromInt32(s), nil
	case int64:
		return decimal.NewFromInt(s), nil
	case uint:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(s)), 0), nil
	case uint8:
		return decimal.NewFromInt(int64(s)), nil
	case uint16:
		return decimal.NewFromInt(int64(s)), nil
	case uint32:
		return decimal.NewFromInt(int64(s)), nil
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(s), 0), nil
	case json.Number:
		return parseScoreString(string(s))
	case string:
		return parseScoreString(s)
	case fmt.Stringer:
		return parseScoreString(s.String())
	}
	return decimal.Zero, ErrInvalidScore
}

func parseScoreString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxScoreLength {
		return decimal.Zero, ErrInvalidScore
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(ErrInvalidScore, "%q", s)
	}
	return d, nil
}

// percentage returns achieved/possible*100; possible must be non-zero.
func percentage(achieved, possible decimal.Decimal) decimal.Decimal {
	return achieved.Mul(hundred).Div(possible)
}

func mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(decimal.Zero, values...).Div(decimal.NewFromInt(int64(len(values))))
}
