package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeWeightedScore(t *testing.T) {
	snap := twoExamCourse().
		student(1, "S1").
		score(1, 11, 1, "50").
		score(1, 21, 2, "90").
		build()

	r := Compute(snap, Params{})
	require.Equal(t, StatusOK, r.Status)
	require.True(t, r.ValidForAggregation)

	sr := r.PerStudent[1]
	assert.True(t, d("74").Equal(sr.WeightedScore), "got %s", sr.WeightedScore)
	assert.True(t, sr.Passed)
	require.Len(t, sr.Exams, 2)
	assert.True(t, d("0.4").Equal(sr.Exams[0].Weight))
	assert.False(t, sr.Exams[0].UsedMakeup)

	// one question per exam, equal links: the CO is the weighted score
	assert.True(t, d("74").Equal(sr.CO[10]))
	assert.True(t, d("74").Equal(sr.PO[100]))
	assert.Equal(t, []int64{100}, r.ContributingPOs)
	assert.True(t, d("74").Equal(r.ClassAverage))
	assert.True(t, d("100").Equal(r.SuccessRate))
}

func TestComputeCourseOutcomeScore(t *testing.T) {
	// exam 1: q1 (max 10, w1) and q2 (max 20, w2); exam 2: q3 (max 50, w1)
	snap := newBuilder(1).
		exam(Exam{ID: 1}, "50").
		exam(Exam{ID: 2}, "50").
		question(1, 1, "10", map[int64]string{10: "1"}).
		question(2, 1, "20", map[int64]string{10: "2"}).
		question(3, 2, "50", map[int64]string{10: "1", 20: "1"}).
		outcome(10, "Design experiments", map[int64]string{100: "1"}).
		outcome(20, "Analyse data", map[int64]string{100: "3", 200: "1"}).
		student(1, "S1").
		score(1, 1, 1, "7").
		score(1, 2, 1, "10").
		score(1, 3, 2, "40").
		build()

	r := Compute(snap, Params{})
	require.Equal(t, StatusOK, r.Status)
	sr := r.PerStudent[1]

	// exam 1: (7 + 10*2) / (10 + 20*2) = 54%, effective 0.5*3
	// exam 2: 40 / 50 = 80%, effective 0.5*1
	// (54*1.5 + 80*0.5) / 2 = 60.5
	assert.Equal(t, "60.50", sr.CO[10].StringFixed(2))
	assert.Equal(t, "80.00", sr.CO[20].StringFixed(2))

	// PO 100: (60.5*1 + 80*3) / 4
	assert.Equal(t, "75.125", sr.PO[100].String())
	assert.Equal(t, "80", sr.PO[200].String())
	assert.Equal(t, []int64{100, 200}, r.ContributingPOs)
}

func TestComputeCourseOutcomeAcrossWeightedExams(t *testing.T) {
	// exam A (0.3): 8/10 at w1, 4/10 at w2; exam B (0.7): 15/20 at w1
	snap := newBuilder(1).
		exam(Exam{ID: 1, Name: "A"}, "0.3").
		exam(Exam{ID: 2, Name: "B"}, "0.7").
		question(1, 1, "10", map[int64]string{10: "1"}).
		question(2, 1, "10", map[int64]string{10: "2"}).
		question(3, 2, "20", map[int64]string{10: "1"}).
		outcome(10, "Solve problems", map[int64]string{100: "1"}).
		student(1, "S1").
		score(1, 1, 1, "8").
		score(1, 2, 1, "4").
		score(1, 3, 2, "15").
		build()

	sr := Compute(snap, Params{}).PerStudent[1]

	// A: 16/30 = 53.33%, effective 0.3*3; B: 75%, effective 0.7*1
	// (53.33*0.9 + 75*0.7) / 1.6 = 62.8125
	assert.Equal(t, "62.81", sr.CO[10].StringFixed(2))
	// 0.3*60 + 0.7*75
	assert.True(t, d("70.5").Equal(sr.WeightedScore), "got %s", sr.WeightedScore)
}

func TestComputeCourseOutcomeRounding(t *testing.T) {
	snap := newBuilder(1).
		exam(Exam{ID: 1}, "1").
		question(1, 1, "3", map[int64]string{10: "1"}).
		outcome(10, "Communicate", nil).
		student(1, "S1").
		score(1, 1, 1, "2").
		build()

	r := Compute(snap, Params{})
	assert.Equal(t, "66.67", r.PerStudent[1].CO[10].String())
	assert.Empty(t, r.ContributingPOs)
}

func TestComputeQuestionsWithoutScoreDoNotCount(t *testing.T) {
	snap := newBuilder(1).
		exam(Exam{ID: 1}, "1").
		question(1, 1, "10", map[int64]string{10: "1"}).
		question(2, 1, "10", map[int64]string{10: "1"}).
		outcome(10, "Communicate", nil).
		student(1, "S1").
		score(1, 1, 1, "8").
		build()

	r := Compute(snap, Params{})
	assert.Equal(t, "80.00", r.PerStudent[1].CO[10].StringFixed(2))
	// the exam percentage still uses every question's max
	assert.True(t, d("40").Equal(r.PerStudent[1].WeightedScore))
}

func TestComputeMakeupTotality(t *testing.T) {
	snap := twoExamCourse().
		exam(Exam{ID: 3, Name: "Midterm makeup", IsMakeup: true, MakeupFor: ptr(1)}, "").
		question(31, 3, "100", map[int64]string{10: "1"}).
		// S1 missed the midterm and scored 0 on the makeup
		student(1, "S1").
		attended(1, 1, false).
		score(1, 11, 1, "95").
		score(1, 31, 3, "0").
		score(1, 21, 2, "80").
		// S2 sat the midterm and did not sit the makeup
		student(2, "S2").
		attended(2, 3, false).
		score(2, 11, 1, "70").
		score(2, 21, 2, "80").
		build()

	r := Compute(snap, Params{})
	require.Equal(t, StatusOK, r.Status)

	s1 := r.PerStudent[1]
	assert.True(t, s1.Exams[0].UsedMakeup)
	assert.Equal(t, int64(3), s1.Exams[0].ExamID)
	// makeup inherits the midterm's 0.4; its 0 replaces the 95
	assert.True(t, d("48").Equal(s1.WeightedScore), "got %s", s1.WeightedScore)
	assert.Equal(t, "48.00", s1.CO[10].StringFixed(2))

	s2 := r.PerStudent[2]
	assert.False(t, s2.Exams[0].UsedMakeup)
	assert.True(t, d("76").Equal(s2.WeightedScore), "got %s", s2.WeightedScore)
}

func TestComputeMakeupWithoutScoresCountsZero(t *testing.T) {
	snap := twoExamCourse().
		exam(Exam{ID: 3, IsMakeup: true, MakeupFor: ptr(1)}, "").
		question(31, 3, "100", map[int64]string{10: "1"}).
		student(1, "S1").
		attended(1, 1, false).
		score(1, 21, 2, "50").
		build()

	r := Compute(snap, Params{})
	s1 := r.PerStudent[1]
	assert.True(t, s1.Exams[0].UsedMakeup)
	assert.True(t, s1.Exams[0].Percentage.Valid)
	assert.True(t, d("30").Equal(s1.WeightedScore), "got %s", s1.WeightedScore)
}

func TestComputeMandatoryExclusion(t *testing.T) {
	snap := newBuilder(1).
		exam(Exam{ID: 1, IsMandatory: true}, "40").
		exam(Exam{ID: 2}, "60").
		exam(Exam{ID: 3, IsMakeup: true, MakeupFor: ptr(1)}, "").
		question(11, 1, "100", map[int64]string{10: "1"}).
		question(21, 2, "100", map[int64]string{10: "1"}).
		question(31, 3, "100", map[int64]string{10: "1"}).
		outcome(10, "Apply", map[int64]string{100: "1"}).
		// attended regular, did not sit the makeup
		student(1, "S1").
		attended(1, 3, false).
		score(1, 11, 1, "100").
		score(1, 21, 2, "100").
		// attended makeup only
		student(2, "S2").
		attended(2, 1, false).
		score(2, 31, 3, "50").
		score(2, 21, 2, "50").
		// absent both: scores present but must never count
		student(3, "S3").
		attended(3, 1, false).
		attended(3, 3, false).
		score(3, 21, 2, "0").
		build()

	r := Compute(snap, Params{})
	require.Equal(t, StatusOK, r.Status)

	assert.Len(t, r.PerStudent, 2)
	_, included := r.PerStudent[3]
	assert.False(t, included)
	require.Len(t, r.Excluded, 1)
	assert.Equal(t, ExcludedStudent{StudentID: 3, Number: "S3", Name: "S S3", Reason: ExcludedMissingMandatory, ExamID: 1}, r.Excluded[0])

	// S3's zero must not drag the class figures down
	assert.True(t, d("75").Equal(r.PerCO[10]), "got %s", r.PerCO[10])
	assert.True(t, d("75").Equal(r.PerPO[100]), "got %s", r.PerPO[100])
	assert.True(t, d("75").Equal(r.ClassAverage))
	assert.Equal(t, 2, r.StudentCount)
}

func TestMandatoryStateMachine(t *testing.T) {
	b := newBuilder(1).
		exam(Exam{ID: 1, IsMandatory: true}, "1").
		exam(Exam{ID: 2, IsMandatory: true}, "1").
		exam(Exam{ID: 3, IsMakeup: true, MakeupFor: ptr(1)}, "")
	b.attended(1, 1, true).
		attended(2, 1, false).
		attended(3, 1, false).attended(3, 3, false).
		attended(4, 2, false)
	idx := newCourseIndex(b.build())

	assert.Equal(t, AttendedRegular, idx.mandatoryState(1, 1))
	assert.Equal(t, AttendedMakeupOnly, idx.mandatoryState(2, 1))
	assert.Equal(t, AbsentBoth, idx.mandatoryState(3, 1))
	// no makeup exists for exam 2
	assert.Equal(t, AbsentBoth, idx.mandatoryState(4, 2))
	// no record at all is attendance
	assert.Equal(t, AttendedRegular, idx.mandatoryState(5, 2))

	assert.True(t, AttendedMakeupOnly.Eligible())
	assert.False(t, AbsentBoth.Eligible())
	assert.Equal(t, "absent_both", AbsentBoth.String())
}

func TestComputeManualExclusion(t *testing.T) {
	b := twoExamCourse().
		student(1, "S1").
		student(2, "S2").
		score(1, 11, 1, "100").
		score(2, 11, 1, "10")
	b.snap.Students[1].Excluded = true
	// absent from a mandatory exam too; manual wins
	b.snap.Exams[0].IsMandatory = true
	b.attended(2, 1, false)

	r := Compute(b.build(), Params{})
	require.Len(t, r.Excluded, 1)
	assert.Equal(t, ExcludedManually, r.Excluded[0].Reason)
	assert.Zero(t, r.Excluded[0].ExamID)
	assert.Len(t, r.PerStudent, 1)
}

func TestComputeMandatoryNoDataIsAbsent(t *testing.T) {
	snap := newBuilder(1).
		exam(Exam{ID: 1, IsMandatory: true}, "50").
		exam(Exam{ID: 2}, "50").
		question(11, 1, "100", map[int64]string{10: "1"}).
		question(21, 2, "100", map[int64]string{10: "1"}).
		outcome(10, "Apply", nil).
		student(1, "S1").
		score(1, 21, 2, "80").
		build()

	r := Compute(snap, Params{})
	sr, ok := r.PerStudent[1]
	require.True(t, ok)
	assert.False(t, sr.Exams[0].Percentage.Valid)
	assert.True(t, sr.Exams[1].Percentage.Valid)
	assert.True(t, d("40").Equal(sr.WeightedScore))
}

func TestComputeNonMandatoryMissedIsZero(t *testing.T) {
	snap := twoExamCourse().
		student(1, "S1").
		attended(1, 1, false).
		score(1, 21, 2, "100").
		build()

	r := Compute(snap, Params{})
	sr := r.PerStudent[1]
	require.True(t, sr.Exams[0].Percentage.Valid)
	assert.True(t, sr.Exams[0].Percentage.Decimal.IsZero())
	assert.True(t, d("60").Equal(sr.WeightedScore))
}

func TestComputeRelativeMethod(t *testing.T) {
	b := twoExamCourse()
	for i, pair := range [][2]string{{"100", "100"}, {"60", "60"}, {"50", "50"}, {"0", "10"}} {
		id := int64(i + 1)
		b.student(id, "S").score(id, 11, 1, pair[0]).score(id, 21, 2, pair[1])
	}
	snap := b.build()

	r := Compute(snap, Params{Method: Relative})
	require.Equal(t, StatusOK, r.Status)
	assert.Equal(t, Relative, r.Method)
	// 100 and 60 reach the default threshold of 60
	assert.True(t, d("50").Equal(r.PerCO[10]), "got %s", r.PerCO[10])
	assert.True(t, d("50").Equal(r.PerPO[100]))
	assert.True(t, d("50").Equal(r.SuccessRate))

	abs := Compute(snap, Params{})
	assert.Equal(t, Absolute, abs.Method)
	// (100 + 60 + 50 + 6) / 4
	assert.True(t, d("54").Equal(abs.PerCO[10]), "got %s", abs.PerCO[10])
}

func TestComputeStatuses(t *testing.T) {
	excluded := twoExamCourse().student(1, "S1").score(1, 11, 1, "1").build()
	excluded.Settings.Excluded = true

	noOutcomes := newBuilder(1).exam(Exam{ID: 1}, "1").question(1, 1, "10", nil).student(1, "S1").build()

	onlyMakeups := newBuilder(1).
		exam(Exam{ID: 1, IsMakeup: true}, "1").
		outcome(10, "x", nil).
		student(1, "S1").build()

	noQuestions := newBuilder(1).exam(Exam{ID: 1}, "1").outcome(10, "x", nil).student(1, "S1").build()

	noStudents := twoExamCourse().build()

	noScores := twoExamCourse().student(1, "S1").build()

	allExcluded := twoExamCourse().student(1, "S1").score(1, 11, 1, "1").build()
	allExcluded.Students[0].Excluded = true

	tests := []struct {
		name string
		snap *Snapshot
		want Status
	}{
		{"course excluded", excluded, StatusCourseExcluded},
		{"no outcomes", noOutcomes, StatusNoOutcomes},
		{"no regular exams", onlyMakeups, StatusNoExams},
		{"no questions", noQuestions, StatusNoQuestions},
		{"no students", noStudents, StatusNoStudents},
		{"no scores", noScores, StatusNoScores},
		{"no eligible students", allExcluded, StatusNoEligibleStudents},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Compute(tt.snap, Params{})
			assert.Equal(t, tt.want, r.Status)
			assert.False(t, r.ValidForAggregation)
			assert.Empty(t, r.PerStudent)
		})
	}
}

func TestComputeZeroWeightsFallBackToEqual(t *testing.T) {
	snap := newBuilder(1).
		exam(Exam{ID: 1}, "0").
		exam(Exam{ID: 2}, "0").
		question(11, 1, "100", map[int64]string{10: "1"}).
		question(21, 2, "100", map[int64]string{10: "1"}).
		outcome(10, "Apply", nil).
		student(1, "S1").
		score(1, 11, 1, "40").
		score(1, 21, 2, "80").
		build()

	r := Compute(snap, Params{})
	require.True(t, r.ValidForAggregation)
	assert.True(t, d("60").Equal(r.PerStudent[1].WeightedScore))
}

func TestComputeCohortFilter(t *testing.T) {
	snap := twoExamCourse().
		student(1, "G1").score(1, 11, 1, "100").score(1, 21, 2, "100").
		student(2, "X2").score(2, 11, 1, "0").score(2, 21, 2, "0").
		build()

	r := Compute(snap, Params{Cohort: map[string]bool{"G1": true}})
	require.Equal(t, StatusOK, r.Status)
	assert.Len(t, r.PerStudent, 1)
	assert.Empty(t, r.Excluded)
	assert.True(t, d("100").Equal(r.ClassAverage))

	none := Compute(snap, Params{Cohort: map[string]bool{}})
	assert.Equal(t, StatusNoStudents, none.Status)
}

func TestComputeIdempotent(t *testing.T) {
	snap := twoExamCourse().
		exam(Exam{ID: 3, IsMakeup: true, MakeupFor: ptr(1)}, "").
		question(31, 3, "100", map[int64]string{10: "1"}).
		student(1, "S1").score(1, 11, 1, "33.3").score(1, 21, 2, "71").
		student(2, "S2").attended(2, 1, false).score(2, 31, 3, "64").score(2, 21, 2, "12.5").
		student(3, "S3").score(3, 11, 1, "99").
		build()

	first := Compute(snap, Params{})
	second := Compute(snap, Params{})
	assert.Equal(t, first, second)

	relative := Compute(snap, Params{Method: Relative})
	again := Compute(snap, Params{Method: Relative})
	assert.Equal(t, relative, again)
}

func TestCourseResultStudentLookup(t *testing.T) {
	r := Compute(twoExamCourse().student(7, "N7").score(7, 11, 1, "10").build(), Params{})
	sr, ok := r.Student("N7")
	require.True(t, ok)
	assert.Equal(t, int64(7), sr.StudentID)
	_, ok = r.Student("missing")
	assert.False(t, ok)
}
