package calc

import (
	"github.com/shopspring/decimal"
)

//
// courseOutcomeScore is a student's percentage on one course outcome.
//
// For each base exam the authoritative exam (base or makeup, from res)
// contributes through the questions linked to the outcome that have a
// recorded score:
//
//	examPct  = Σ(score·w) / Σ(max·w) · 100
//	effective = examWeight · Σw
//
// and the outcome is Σ(examPct·effective) / Σeffective, rounded to two
// places. An outcome with no linked questions, or whose effective
// weights sum to zero, scores 0.
//
func (idx *courseIndex) courseOutcomeScore(studentID, outcomeID int64, res Resolution) decimal.Decimal {
	byExam := idx.coQuestions[outcomeID]
	if len(byExam) == 0 {
		return decimal.Zero
	}

	weighted := decimal.Zero
	applied := decimal.Zero

	for _, baseID := range idx.regular {
		examID := res.Exam(baseID)
		questions := byExam[examID]
		if len(questions) == 0 {
			continue
		}

		achieved := decimal.Zero
		possible := decimal.Zero
		linkSum := decimal.Zero
		for _, q := range questions {
			v, ok := idx.snap.Score(studentID, q.ID, examID)
			if !ok {
				continue
			}
			achieved = achieved.Add(v.Mul(q.weight))
			possible = possible.Add(q.MaxScore.Mul(q.weight))
			linkSum = linkSum.Add(q.weight)
		}
		if linkSum.IsZero() {
			continue
		}

		effective := idx.weights[baseID].Mul(linkSum)
		pct := decimal.Zero
		if possible.IsPositive() {
			pct = percentage(achieved, possible)
		}
		weighted = weighted.Add(pct.Mul(effective))
		applied = applied.Add(effective)
	}

	if applied.IsZero() {
		return decimal.Zero
	}
	return RoundScore(weighted.Div(applied))
}

//
// programOutcomeScore is the CO-PO weighted mean of the student's
// course outcome scores; coScores must hold every course outcome.
//
func (idx *courseIndex) programOutcomeScore(poID int64, coScores map[int64]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	weights := decimal.Zero
	for _, link := range idx.poOutcomes[poID] {
		total = total.Add(coScores[link.outcomeID].Mul(link.weight))
		weights = weights.Add(link.weight)
	}
	if weights.IsZero() {
		return decimal.Zero
	}
	return total.Div(weights)
}

// StudentResult is one included student's figures for a course.
type StudentResult struct {
	StudentID int64  `json:"studentId"`
	Number    string `json:"number"`
	Name      string `json:"name"`
	// WeightedScore is the unrounded weighted course score.
	WeightedScore decimal.Decimal `json:"weightedScore"`
	// Passed is WeightedScore >= the course threshold.
	Passed bool                      `json:"passed"`
	Exams  []ExamResult              `json:"exams"`
	CO     map[int64]decimal.Decimal `json:"courseOutcomes"`
	PO     map[int64]decimal.Decimal `json:"programOutcomes"`
}

// scoreStudent computes every figure for one eligible student.
func (idx *courseIndex) scoreStudent(student Student) StudentResult {
	res := idx.resolve(student.ID)
	weighted, exams := idx.weightedScore(student.ID, res)

	result := StudentResult{
		StudentID:     student.ID,
		Number:        student.Number,
		Name:          student.Name(),
		WeightedScore: weighted,
		Passed:        weighted.GreaterThanOrEqual(idx.snap.Settings.Threshold),
		Exams:         exams,
		CO:            make(map[int64]decimal.Decimal, len(idx.snap.Outcomes)),
		PO:            make(map[int64]decimal.Decimal, len(idx.contributing)),
	}
	for _, co := range idx.snap.Outcomes {
		result.CO[co.ID] = idx.courseOutcomeScore(student.ID, co.ID, res)
	}
	for _, poID := range idx.contributing {
		result.PO[poID] = idx.programOutcomeScore(poID, result.CO)
	}
	return result
}
