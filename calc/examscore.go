package calc

import (
	"github.com/shopspring/decimal"
)

var absent = decimal.NullDecimal{}

func present(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

//
// examPercentage is a student's unrounded percentage on one exam.
//
// Absent (Valid false) when the exam has nothing to score against,
// or when a mandatory exam has no attendance or no recorded scores.
// A non-mandatory exam that was missed or has no scores is 0%.
//
func (idx *courseIndex) examPercentage(studentID, examID int64) decimal.NullDecimal {
	exam, ok := idx.exams[examID]
	if !ok {
		return absent
	}
	possible := idx.possible[examID]
	if possible.IsZero() {
		return absent
	}

	if !idx.snap.Attended(studentID, examID) {
		if exam.IsMandatory {
			return absent
		}
		return present(decimal.Zero)
	}

	achieved := decimal.Zero
	recorded := false
	for _, q := range idx.snap.Questions[examID] {
		if v, ok := idx.snap.Score(studentID, q.ID, examID); ok {
			achieved = achieved.Add(v)
			recorded = true
		}
	}
	if !recorded {
		if exam.IsMandatory {
			return absent
		}
		return present(decimal.Zero)
	}

	return present(percentage(achieved, possible))
}

// ExamResult is one base exam's contribution to a weighted course score.
type ExamResult struct {
	BaseExamID int64 `json:"baseExamId"`
	// ExamID is the exam whose scores were used: the base or its makeup.
	ExamID     int64               `json:"examId"`
	UsedMakeup bool                `json:"usedMakeup"`
	Percentage decimal.NullDecimal `json:"percentage"`
	Weight     decimal.Decimal     `json:"weight"`
}

//
// weightedScore sums each base exam's authoritative percentage times
// the base exam's normalized weight. A makeup inherits the weight of
// the exam it replaces; an absent percentage contributes nothing.
//
func (idx *courseIndex) weightedScore(studentID int64, res Resolution) (decimal.Decimal, []ExamResult) {
	total := decimal.Zero
	exams := make([]ExamResult, 0, len(idx.regular))
	for _, baseID := range idx.regular {
		examID := res.Exam(baseID)
		pct := idx.examPercentage(studentID, examID)
		if !pct.Valid && res.UsesMakeup(baseID) {
			pct = present(decimal.Zero)
		}
		w := idx.weights[baseID]
		if pct.Valid {
			total = total.Add(pct.Decimal.Mul(w))
		}
		exams = append(exams, ExamResult{
			BaseExamID: baseID,
			ExamID:     examID,
			UsedMakeup: examID != baseID,
			Percentage: pct,
			Weight:     w,
		})
	}
	return total, exams
}
