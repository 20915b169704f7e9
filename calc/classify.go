package calc

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Sentinel classification names.
const (
	InvalidScore   = "Invalid Score"
	ConfigError    = "Config Error"
	NotCategorized = "Not Categorized"
)

//
// Classification is the band a score falls in. Score is the rounded
// value that was compared; it is not Valid for InvalidScore.
//
type Classification struct {
	Name  string              `json:"name"`
	Color string              `json:"color"`
	Score decimal.NullDecimal `json:"score"`
}

//
// Classify coerces v with ParseScore and classifies it; anything
// ParseScore rejects (nil, NaN, infinities, junk strings) is
// InvalidScore.
//
func Classify(v interface{}, levels []AchievementLevel) Classification {
	score, err := ParseScore(v)
	if err != nil {
		return Classification{Name: InvalidScore, Color: "secondary"}
	}
	return ClassifyScore(score, levels)
}

//
// ClassifyScore maps score onto levels.
//
// The score is rounded half-up to two places first, then levels are
// scanned by descending MinScore and the first inclusive
// [MinScore, MaxScore] match wins, so a boundary claimed by two bands
// goes to the higher one whatever order levels arrive in.
//
// A level with no MinScore makes the set unsortable: ConfigError.
// A level with no MaxScore, or MinScore > MaxScore, is skipped.
// No match is NotCategorized; gaps are left as they are.
//
func ClassifyScore(score decimal.Decimal, levels []AchievementLevel) Classification {
	rounded := RoundScore(score)
	scored := decimal.NullDecimal{Decimal: rounded, Valid: true}

	for _, level := range levels {
		if !level.MinScore.Valid {
			return Classification{Name: ConfigError, Color: "danger", Score: scored}
		}
	}

	sorted := make([]AchievementLevel, len(levels))
	copy(sorted, levels)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinScore.Decimal.GreaterThan(sorted[j].MinScore.Decimal)
	})

	for _, level := range sorted {
		if !level.MaxScore.Valid || level.MinScore.Decimal.GreaterThan(level.MaxScore.Decimal) {
			logger.Warnf("skipping achievement level %q: invalid boundaries", level.Name)
			continue
		}
		if rounded.GreaterThanOrEqual(level.MinScore.Decimal) && rounded.LessThanOrEqual(level.MaxScore.Decimal) {
			return Classification{Name: level.Name, Color: level.Color, Score: scored}
		}
	}

	return Classification{Name: NotCategorized, Color: "secondary", Score: scored}
}

// DefaultLevels are used when neither course nor global levels exist.
func DefaultLevels() []AchievementLevel {
	return []AchievementLevel{
		NewLevel("Excellent", decimal.RequireFromString("90.00"), decimal.RequireFromString("100.00"), "success"),
		NewLevel("Better", decimal.RequireFromString("70.00"), decimal.RequireFromString("89.99"), "info"),
		NewLevel("Good", decimal.RequireFromString("60.00"), decimal.RequireFromString("69.99"), "primary"),
		NewLevel("Need Improvements", decimal.RequireFromString("50.00"), decimal.RequireFromString("59.99"), "warning"),
		NewLevel("Failure", decimal.RequireFromString("0.01"), decimal.RequireFromString("49.99"), "danger"),
	}
}

type LevelIssueKind string

const (
	LevelMissingBoundary LevelIssueKind = "missing_boundary"
	LevelInverted        LevelIssueKind = "inverted"
	LevelOverlap         LevelIssueKind = "overlap"
	LevelGap             LevelIssueKind = "gap"
)

type LevelIssue struct {
	Kind    LevelIssueKind `json:"kind"`
	Levels  []string       `json:"levels"`
	Message string         `json:"message"`
}

// levelStep is the smallest distance between adjacent contiguous bands.
var levelStep = decimal.RequireFromString("0.01")

//
// ValidateLevels reports malformed, overlapping and gapped bands.
// It only reports; ClassifyScore still applies first-match-wins.
//
func ValidateLevels(levels []AchievementLevel) []LevelIssue {
	var issues []LevelIssue
	var usable []AchievementLevel

	for _, level := range levels {
		switch {
		case !level.MinScore.Valid || !level.MaxScore.Valid:
			issues = append(issues, LevelIssue{
				Kind:    LevelMissingBoundary,
				Levels:  []string{level.Name},
				Message: fmt.Sprintf("%s has a missing or malformed boundary", level.Name),
			})
		case level.MinScore.Decimal.GreaterThan(level.MaxScore.Decimal):
			issues = append(issues, LevelIssue{
				Kind:    LevelInverted,
				Levels:  []string{level.Name},
				Message: fmt.Sprintf("%s: min %s is above max %s", level.Name, level.MinScore.Decimal, level.MaxScore.Decimal),
			})
		default:
			usable = append(usable, level)
		}
	}

	sort.SliceStable(usable, func(i, j int) bool {
		return usable[i].MinScore.Decimal.LessThan(usable[j].MinScore.Decimal)
	})
	for i := 1; i < len(usable); i++ {
		prev, cur := usable[i-1], usable[i]
		switch {
		case cur.MinScore.Decimal.LessThanOrEqual(prev.MaxScore.Decimal):
			issues = append(issues, LevelIssue{
				Kind:    LevelOverlap,
				Levels:  []string{prev.Name, cur.Name},
				Message: fmt.Sprintf("%s and %s overlap at %s", prev.Name, cur.Name, cur.MinScore.Decimal.StringFixed(2)),
			})
		case cur.MinScore.Decimal.Sub(prev.MaxScore.Decimal).GreaterThan(levelStep):
			issues = append(issues, LevelIssue{
				Kind:   LevelGap,
				Levels: []string{prev.Name, cur.Name},
				Message: fmt.Sprintf("no band covers %s to %s", prev.MaxScore.Decimal.StringFixed(2),
					cur.MinScore.Decimal.StringFixed(2)),
			})
		}
	}
	return issues
}
