package calc

import (
	"context"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(id int64) *int64 {
	return &id
}

//
// builder assembles a Snapshot for one course in a few calls so each
// scenario reads as its data.
//
type builder struct {
	snap *Snapshot
}

func newBuilder(courseID int64) *builder {
	return &builder{snap: &Snapshot{
		Course:        Course{ID: courseID, Code: "C" + decimal.NewFromInt(courseID).String(), Weight: d("1")},
		Settings:      DefaultSettings(courseID),
		RawWeights:    map[int64]decimal.Decimal{},
		Questions:     map[int64][]Question{},
		QuestionLinks: map[int64][]OutcomeLink{},
		OutcomeLinks:  map[int64][]OutcomeLink{},
		Scores:        map[ScoreKey]decimal.Decimal{},
		Attendance:    map[AttendanceKey]bool{},
	}}
}

func (b *builder) exam(e Exam, weight string) *builder {
	e.CourseID = b.snap.Course.ID
	b.snap.Exams = append(b.snap.Exams, e)
	if weight != "" {
		b.snap.RawWeights[e.ID] = d(weight)
	}
	return b
}

// question adds a question and links it to course outcomes: co id -> weight.
func (b *builder) question(id, examID int64, max string, cos map[int64]string) *builder {
	q := Question{ID: id, ExamID: examID, Number: len(b.snap.Questions[examID]) + 1, MaxScore: d(max)}
	b.snap.Questions[examID] = append(b.snap.Questions[examID], q)
	for co, w := range cos {
		b.snap.QuestionLinks[id] = append(b.snap.QuestionLinks[id], OutcomeLink{TargetID: co, Weight: d(w)})
	}
	return b
}

// outcome adds a course outcome feeding program outcomes: po id -> weight.
func (b *builder) outcome(id int64, desc string, pos map[int64]string) *builder {
	b.snap.Outcomes = append(b.snap.Outcomes, CourseOutcome{ID: id, CourseID: b.snap.Course.ID, Code: "CO" + decimal.NewFromInt(id).String(), Description: desc})
	for po, w := range pos {
		b.snap.OutcomeLinks[id] = append(b.snap.OutcomeLinks[id], OutcomeLink{TargetID: po, Weight: d(w)})
	}
	return b
}

func (b *builder) student(id int64, number string) *builder {
	b.snap.Students = append(b.snap.Students, Student{ID: id, CourseID: b.snap.Course.ID, Number: number, FirstName: "S", LastName: number})
	return b
}

func (b *builder) score(studentID, questionID, examID int64, v string) *builder {
	b.snap.Scores[ScoreKey{StudentID: studentID, QuestionID: questionID, ExamID: examID}] = d(v)
	return b
}

func (b *builder) attended(studentID, examID int64, attended bool) *builder {
	b.snap.Attendance[AttendanceKey{StudentID: studentID, ExamID: examID}] = attended
	return b
}

func (b *builder) build() *Snapshot {
	return b.snap
}

//
// twoExamCourse: midterm (40) and final (60), one 100 point question
// each, both feeding CO 10 which feeds PO 100.
//
func twoExamCourse() *builder {
	return newBuilder(1).
		exam(Exam{ID: 1, Name: "Midterm"}, "40").
		exam(Exam{ID: 2, Name: "Final", IsFinal: true}, "60").
		question(11, 1, "100", map[int64]string{10: "1"}).
		question(21, 2, "100", map[int64]string{10: "1"}).
		outcome(10, "Apply numerical methods", map[int64]string{100: "1"})
}

//
// memRepo is a Repository over a fixed set of snapshots.
//
type memRepo struct {
	snaps      map[int64]*Snapshot
	levels     map[int64][]AchievementLevel
	graduating []string
	err        error
}

func newMemRepo(snaps ...*Snapshot) *memRepo {
	r := &memRepo{snaps: map[int64]*Snapshot{}, levels: map[int64][]AchievementLevel{}}
	for _, s := range snaps {
		r.snaps[s.Course.ID] = s
	}
	return r
}

func (r *memRepo) GetCourses(ctx context.Context) ([]Course, error) {
	var courses []Course
	for _, s := range r.snaps {
		courses = append(courses, s.Course)
	}
	return courses, r.err
}

func (r *memRepo) GetCourse(ctx context.Context, id int64) (Course, error) {
	if r.err != nil {
		return Course{}, r.err
	}
	s, ok := r.snaps[id]
	if !ok {
		return Course{}, ErrNotFound
	}
	return s.Course, nil
}

func (r *memRepo) GetCourseSettings(ctx context.Context, courseID int64) (CourseSettings, error) {
	s, ok := r.snaps[courseID]
	if !ok || s.Settings.Method == "" {
		return CourseSettings{}, ErrNotFound
	}
	return s.Settings, nil
}

func (r *memRepo) GetExams(ctx context.Context, courseID int64) ([]Exam, error) {
	return r.snaps[courseID].Exams, nil
}

func (r *memRepo) GetExamWeights(ctx context.Context, courseID int64) (map[int64]decimal.Decimal, error) {
	return r.snaps[courseID].RawWeights, nil
}

func (r *memRepo) GetQuestions(ctx context.Context, examID int64) ([]Question, error) {
	for _, s := range r.snaps {
		if qs, ok := s.Questions[examID]; ok {
			return qs, nil
		}
	}
	return nil, nil
}

func (r *memRepo) GetQuestionOutcomeLinks(ctx context.Context, questionID int64) ([]OutcomeLink, error) {
	for _, s := range r.snaps {
		if ls, ok := s.QuestionLinks[questionID]; ok {
			return ls, nil
		}
	}
	return nil, nil
}

func (r *memRepo) GetCourseOutcomes(ctx context.Context, courseID int64) ([]CourseOutcome, error) {
	return r.snaps[courseID].Outcomes, nil
}

func (r *memRepo) GetOutcomeLinks(ctx context.Context, courseOutcomeID int64) ([]OutcomeLink, error) {
	for _, s := range r.snaps {
		if ls, ok := s.OutcomeLinks[courseOutcomeID]; ok {
			return ls, nil
		}
	}
	return nil, nil
}

func (r *memRepo) GetProgramOutcomes(ctx context.Context) ([]ProgramOutcome, error) {
	return nil, nil
}

func (r *memRepo) GetStudents(ctx context.Context, courseID int64) ([]Student, error) {
	return r.snaps[courseID].Students, nil
}

func (r *memRepo) GetScores(ctx context.Context, studentIDs, examIDs []int64) (map[ScoreKey]decimal.Decimal, error) {
	out := map[ScoreKey]decimal.Decimal{}
	for _, s := range r.snaps {
		for k, v := range s.Scores {
			out[k] = v
		}
	}
	return out, nil
}

func (r *memRepo) GetAttendance(ctx context.Context, studentIDs, examIDs []int64) (map[AttendanceKey]bool, error) {
	out := map[AttendanceKey]bool{}
	for _, s := range r.snaps {
		for k, v := range s.Attendance {
			out[k] = v
		}
	}
	return out, nil
}

func (r *memRepo) GetAchievementLevels(ctx context.Context, courseID int64) ([]AchievementLevel, error) {
	return r.levels[courseID], nil
}

func (r *memRepo) GetGraduatingStudents(ctx context.Context) ([]string, error) {
	return r.graduating, nil
}
