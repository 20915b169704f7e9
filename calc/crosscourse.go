package calc

import (
	"sort"

	"github.com/shopspring/decimal"
)

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

//
// ComputeCrossCourseAverages is the institution-wide score of each
// program outcome: Σ(classPO·w) / Σw over the courses that are valid
// for aggregation and feed that outcome.
//
// weights overrides a course's own weight when it has an entry.
// Every program outcome fed by any supplied course is present in the
// result; it is not Valid when no course could contribute.
//
func ComputeCrossCourseAverages(results []*CourseResult, weights map[int64]decimal.Decimal) map[int64]decimal.NullDecimal {
	return crossCourse(results, weights, func(r *CourseResult, poID int64) (decimal.Decimal, bool) {
		v, ok := r.PerPO[poID]
		return v, ok
	})
}

//
// StudentCrossCourseAverages is ComputeCrossCourseAverages over one
// student's own program outcome scores, taken from every course the
// student is included in.
//
func StudentCrossCourseAverages(results []*CourseResult, weights map[int64]decimal.Decimal, number string) map[int64]decimal.NullDecimal {
	return crossCourse(results, weights, func(r *CourseResult, poID int64) (decimal.Decimal, bool) {
		sr, ok := r.Student(number)
		if !ok {
			return decimal.Zero, false
		}
		v, ok := sr.PO[poID]
		return v, ok
	})
}

func crossCourse(results []*CourseResult, weights map[int64]decimal.Decimal,
	score func(*CourseResult, int64) (decimal.Decimal, bool)) map[int64]decimal.NullDecimal {

	type acc struct{ weighted, weight decimal.Decimal }
	sums := map[int64]*acc{}

	for _, r := range results {
		if r == nil {
			continue
		}
		for _, poID := range r.ContributingPOs {
			a, ok := sums[poID]
			if !ok {
				a = &acc{weighted: decimal.Zero, weight: decimal.Zero}
				sums[poID] = a
			}
			if !r.ValidForAggregation {
				continue
			}
			v, ok := score(r, poID)
			if !ok {
				continue
			}
			w := r.CourseWeight
			if override, ok := weights[r.CourseID]; ok {
				w = override
			}
			a.weighted = a.weighted.Add(v.Mul(w))
			a.weight = a.weight.Add(w)
		}
	}

	averages := make(map[int64]decimal.NullDecimal, len(sums))
	for poID, a := range sums {
		if !a.weight.IsPositive() {
			averages[poID] = absent
			continue
		}
		averages[poID] = present(a.weighted.Div(a.weight))
	}
	return averages
}
