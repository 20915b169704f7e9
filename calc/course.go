package calc

import (
	"github.com/shopspring/decimal"
)

// Status explains a course result; only StatusOK is valid for aggregation.
type Status string

const (
	StatusOK                 Status = "ok"
	StatusCourseExcluded     Status = "course_excluded"
	StatusNoOutcomes         Status = "no_outcomes"
	StatusNoExams            Status = "no_exams"
	StatusNoQuestions        Status = "no_questions"
	StatusNoStudents         Status = "no_students"
	StatusNoScores           Status = "no_scores"
	StatusNoEligibleStudents Status = "no_eligible_students"
)

//
// CourseResult is everything one course calculation produces.
// Students in Excluded never appear in PerStudent and never reach
// the class figures.
//
type CourseResult struct {
	CourseID     int64           `json:"courseId"`
	CourseCode   string          `json:"courseCode"`
	CourseWeight decimal.Decimal `json:"courseWeight"`
	Method       Method          `json:"method"`
	Threshold    decimal.Decimal `json:"threshold"`

	Status              Status `json:"status"`
	ValidForAggregation bool   `json:"validForAggregation"`

	PerStudent map[int64]StudentResult `json:"perStudent"`
	Excluded   []ExcludedStudent       `json:"excluded"`
	// PerCO and PerPO are class scores by outcome id.
	PerCO map[int64]decimal.Decimal `json:"perCO"`
	PerPO map[int64]decimal.Decimal `json:"perPO"`
	// ContributingPOs are the program outcomes this course feeds, ascending.
	ContributingPOs []int64 `json:"contributingPOs"`

	StudentCount int `json:"studentCount"`
	// ClassAverage is the mean weighted course score.
	ClassAverage decimal.Decimal `json:"classAverage"`
	// SuccessRate is the percentage of students whose weighted score reaches Threshold.
	SuccessRate decimal.Decimal `json:"successRate"`
	// AverageOutcomeScore is the mean of PerPO over ContributingPOs.
	AverageOutcomeScore decimal.Decimal `json:"averageOutcomeScore"`
}

//
// Params tune one calculation.
//
type Params struct {
	// Method overrides the course setting when non-empty.
	Method Method
	// Cohort, when non-nil, restricts the calculation to students whose
	// number is in the set. Others are filtered out, not excluded.
	Cohort map[string]bool
}

//
// Compute turns a snapshot into a course result. It performs no I/O,
// keeps no state between calls and does not modify snap, so repeated
// calls on one snapshot give identical results and independent
// courses may be computed in parallel.
//
func Compute(snap *Snapshot, p Params) *CourseResult {

	method := p.Method
	if method == "" {
		method = snap.Settings.Method
	}
	if method != Absolute && method != Relative {
		logger.Warnf("course %d: unknown method %q, using absolute", snap.Course.ID, method)
		method = Absolute
	}
	threshold := snap.Settings.Threshold

	result := &CourseResult{
		CourseID:     snap.Course.ID,
		CourseCode:   snap.Course.Code,
		CourseWeight: snap.Course.Weight,
		Method:       method,
		Threshold:    threshold,
		PerStudent:   map[int64]StudentResult{},
		PerCO:        map[int64]decimal.Decimal{},
		PerPO:        map[int64]decimal.Decimal{},
	}

	if snap.Settings.Excluded {
		return result.withStatus(StatusCourseExcluded)
	}
	if len(snap.Outcomes) == 0 {
		return result.withStatus(StatusNoOutcomes)
	}

	idx := newCourseIndex(snap)
	result.ContributingPOs = idx.contributing

	if len(idx.regular) == 0 {
		return result.withStatus(StatusNoExams)
	}
	if !idx.hasQuestions() {
		return result.withStatus(StatusNoQuestions)
	}

	students := make([]Student, 0, len(snap.Students))
	for _, s := range snap.Students {
		if p.Cohort != nil && !p.Cohort[s.Number] {
			continue
		}
		students = append(students, s)
	}
	if len(students) == 0 {
		return result.withStatus(StatusNoStudents)
	}
	if len(snap.Scores) == 0 {
		return result.withStatus(StatusNoScores)
	}

	var weighted []decimal.Decimal
	for _, student := range students {
		if excluded, ok := idx.eligibility(student); !ok {
			result.Excluded = append(result.Excluded, excluded)
			continue
		}
		sr := idx.scoreStudent(student)
		result.PerStudent[student.ID] = sr
		weighted = append(weighted, sr.WeightedScore)
	}
	result.StudentCount = len(result.PerStudent)

	for _, co := range snap.Outcomes {
		result.PerCO[co.ID] = AggregateClass(result.column(func(sr StudentResult) decimal.Decimal {
			return sr.CO[co.ID]
		}), method, threshold).Value
	}
	for _, poID := range idx.contributing {
		result.PerPO[poID] = AggregateClass(result.column(func(sr StudentResult) decimal.Decimal {
			return sr.PO[poID]
		}), method, threshold).Value
	}

	if result.StudentCount == 0 {
		logger.Debugf("course %d: all %d students excluded", snap.Course.ID, len(result.Excluded))
		return result.withStatus(StatusNoEligibleStudents)
	}

	result.ClassAverage = mean(weighted)
	result.SuccessRate = successRate(weighted, threshold)

	var poScores []decimal.Decimal
	for _, poID := range idx.contributing {
		poScores = append(poScores, result.PerPO[poID])
	}
	result.AverageOutcomeScore = mean(poScores)

	logger.Debugf("course %d: %d students scored, %d excluded", snap.Course.ID, result.StudentCount, len(result.Excluded))
	result.Status = StatusOK
	result.ValidForAggregation = true
	return result
}

func (r *CourseResult) withStatus(s Status) *CourseResult {
	r.Status = s
	r.ValidForAggregation = false
	logger.Debugf("course %d: %s", r.CourseID, s)
	return r
}

// column collects one figure from every included student, by student id.
func (r *CourseResult) column(get func(StudentResult) decimal.Decimal) []decimal.Decimal {
	ids := r.studentIDs()
	values := make([]decimal.Decimal, 0, len(ids))
	for _, id := range ids {
		values = append(values, get(r.PerStudent[id]))
	}
	return values
}

func (r *CourseResult) studentIDs() []int64 {
	ids := make([]int64, 0, len(r.PerStudent))
	for id := range r.PerStudent {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// Student looks up an included student by student number.
func (r *CourseResult) Student(number string) (StudentResult, bool) {
	for _, sr := range r.PerStudent {
		if sr.Number == number {
			return sr, true
		}
	}
	return StudentResult{}, false
}
