package calc

import (
	"github.com/shopspring/decimal"
)

//
// ClassScore is one outcome reduced over the valid students.
// Insufficient is set when there were no valid students: the zero
// Value is then a placeholder, not an achievement.
//
type ClassScore struct {
	Value        decimal.Decimal `json:"value"`
	Count        int             `json:"count"`
	Insufficient bool            `json:"insufficient"`
}

//
// AggregateClass reduces valid per-student scores to a class figure.
// Absolute is the arithmetic mean; Relative is the percentage of
// scores at or above threshold. Any other method is treated as
// Absolute.
//
func AggregateClass(scores []decimal.Decimal, method Method, threshold decimal.Decimal) ClassScore {
	if len(scores) == 0 {
		return ClassScore{Value: decimal.Zero, Insufficient: true}
	}
	cs := ClassScore{Count: len(scores)}
	if method == Relative {
		cs.Value = successRate(scores, threshold)
		return cs
	}
	cs.Value = mean(scores)
	return cs
}

func successRate(scores []decimal.Decimal, threshold decimal.Decimal) decimal.Decimal {
	if len(scores) == 0 {
		return decimal.Zero
	}
	passed := 0
	for _, s := range scores {
		if s.GreaterThanOrEqual(threshold) {
			passed++
		}
	}
	return percentage(decimal.NewFromInt(int64(passed)), decimal.NewFromInt(int64(len(scores))))
}
