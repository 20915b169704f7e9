package calc

import (
	"github.com/shopspring/decimal"
)

//
// NormalizeWeights scales raw exam weights so they sum to 1.
// When every weight is zero (or the total is not positive) each exam
// gets an equal share instead; an empty set stays empty.
//
func NormalizeWeights(raw map[int64]decimal.Decimal) map[int64]decimal.Decimal {
	normalized := make(map[int64]decimal.Decimal, len(raw))
	if len(raw) == 0 {
		return normalized
	}

	total := decimal.Zero
	for _, w := range raw {
		total = total.Add(w)
	}

	if !total.IsPositive() {
		share := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(len(raw))))
		for id := range raw {
			normalized[id] = share
		}
		return normalized
	}

	for id, w := range raw {
		normalized[id] = w.Div(total)
	}
	return normalized
}

// regularExamWeights gives every base exam its stored weight, or zero.
func regularExamWeights(snap *Snapshot) map[int64]decimal.Decimal {
	raw := map[int64]decimal.Decimal{}
	for _, exam := range snap.Exams {
		if exam.IsMakeup {
			continue
		}
		w, ok := snap.RawWeights[exam.ID]
		if !ok || w.IsNegative() {
			w = decimal.Zero
		}
		raw[exam.ID] = w
	}
	return raw
}
