package calc

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xrash/smetrics"
)

// DefaultSimilarity is the Jaro-Winkler threshold for grouping outcomes.
const DefaultSimilarity = 0.9

// OutcomeGroup is a set of similar course outcomes from several courses.
type OutcomeGroup struct {
	Representative CourseOutcome   `json:"representative"`
	Outcomes       []CourseOutcome `json:"outcomes"`
	CourseIDs      []int64         `json:"courseIds"`
}

//
// OutcomeGrouping is the cacheable result of GroupSimilarOutcomes.
// It is only reused for the same Threshold.
//
type OutcomeGrouping struct {
	Threshold  float64         `json:"threshold"`
	Groups     []OutcomeGroup  `json:"groups"`
	NonGrouped []CourseOutcome `json:"nonGrouped"`
	ComputedAt time.Time       `json:"computedAt"`
}

//
// GroupingCache holds at most one grouping. Implementations must be
// safe for concurrent use; Invalidate drops whatever is held.
//
type GroupingCache interface {
	Get(ctx context.Context, threshold float64) (*OutcomeGrouping, bool, error)
	Put(ctx context.Context, g *OutcomeGrouping) error
	Invalidate(ctx context.Context) error
}

func similarity(a, b string) float64 {
	return smetrics.JaroWinkler(strings.ToLower(a), strings.ToLower(b), 0.7, 4)
}

//
// GroupSimilarOutcomes walks outcomes in order; each outcome not yet
// grouped becomes a representative and collects every later-unclaimed
// outcome whose description is at least threshold similar. Groups of
// one are released and reported as NonGrouped.
//
func GroupSimilarOutcomes(outcomes []CourseOutcome, threshold float64, now time.Time) *OutcomeGrouping {
	g := &OutcomeGrouping{Threshold: threshold, ComputedAt: now}
	claimed := make(map[int64]bool, len(outcomes))

	for i, rep := range outcomes {
		if claimed[rep.ID] {
			continue
		}
		group := OutcomeGroup{Representative: rep, Outcomes: []CourseOutcome{rep}, CourseIDs: []int64{rep.CourseID}}
		claimed[rep.ID] = true

		for j, other := range outcomes {
			if i == j || claimed[other.ID] {
				continue
			}
			if similarity(rep.Description, other.Description) >= threshold {
				group.Outcomes = append(group.Outcomes, other)
				if !containsID(group.CourseIDs, other.CourseID) {
					group.CourseIDs = append(group.CourseIDs, other.CourseID)
				}
				claimed[other.ID] = true
			}
		}

		if len(group.Outcomes) > 1 {
			g.Groups = append(g.Groups, group)
		} else {
			delete(claimed, rep.ID)
		}
	}

	for _, o := range outcomes {
		if !claimed[o.ID] {
			g.NonGrouped = append(g.NonGrouped, o)
		}
	}
	return g
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// GroupEntry is one outcome's class score inside a group average.
type GroupEntry struct {
	OutcomeID    int64           `json:"outcomeId"`
	OutcomeCode  string          `json:"outcomeCode"`
	CourseID     int64           `json:"courseId"`
	CourseCode   string          `json:"courseCode"`
	CourseWeight decimal.Decimal `json:"courseWeight"`
	Score        decimal.Decimal `json:"score"`
}

//
// GroupAverage weights each outcome's class CO score by its course
// weight. Outcomes whose course result is missing or not valid for
// aggregation are left out; Average is not Valid if nothing remains.
//
func GroupAverage(outcomes []CourseOutcome, results map[int64]*CourseResult) ([]GroupEntry, decimal.NullDecimal) {
	var entries []GroupEntry
	weighted := decimal.Zero
	weights := decimal.Zero

	for _, o := range outcomes {
		r, ok := results[o.CourseID]
		if !ok || r == nil || !r.ValidForAggregation {
			continue
		}
		score, ok := r.PerCO[o.ID]
		if !ok {
			continue
		}
		entries = append(entries, GroupEntry{
			OutcomeID:    o.ID,
			OutcomeCode:  o.Code,
			CourseID:     r.CourseID,
			CourseCode:   r.CourseCode,
			CourseWeight: r.CourseWeight,
			Score:        score,
		})
		weighted = weighted.Add(score.Mul(r.CourseWeight))
		weights = weights.Add(r.CourseWeight)
	}

	if !weights.IsPositive() {
		return entries, absent
	}
	return entries, present(weighted.Div(weights))
}
