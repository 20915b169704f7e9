//
// package jsonstore serves the calc.Repository contract from a single
// JSON snapshot document, read from disk or fetched from the service
// that exports it.
//
package jsonstore

import (
	"bytes"
	"context"
	"io/ioutil"
	"sort"

	"github.com/labstack/gommon/log"
	"github.com/nsip/otf-outcomes/calc"
	"github.com/nsip/otf-outcomes/internal/util"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

var logger = log.New("jsonstore")

//
// Store is an immutable, fully indexed copy of a snapshot document.
// Document layout (all arrays optional):
//
//	courses            [{id, code, name, semester, weight, settings:{method, threshold, excluded}}]
//	exams              [{id, courseId, name, mandatory, makeup, final, makeupFor}]
//	examWeights        [{examId, courseId, weight}]
//	questions          [{id, examId, number, maxScore, outcomes:[{id, weight}]}]
//	courseOutcomes     [{id, courseId, code, description, programOutcomes:[{id, weight}]}]
//	programOutcomes    [{id, code, description}]
//	students           [{id, courseId, number, firstName, lastName, excluded}]
//	scores             [{studentId, questionId, examId, score}]
//	attendance         [{studentId, examId, attended}]
//	achievementLevels  [{id, courseId (omit for global), name, min, max, color}]
//	graduatingStudents ["number", ...]
//
type Store struct {
	courses         map[int64]calc.Course
	settings        map[int64]calc.CourseSettings
	exams           map[int64][]calc.Exam
	examWeights     map[int64]map[int64]decimal.Decimal
	questions       map[int64][]calc.Question
	questionLinks   map[int64][]calc.OutcomeLink
	outcomes        map[int64][]calc.CourseOutcome
	outcomeLinks    map[int64][]calc.OutcomeLink
	programOutcomes []calc.ProgramOutcome
	students        map[int64][]calc.Student
	scores          map[calc.ScoreKey]decimal.Decimal
	attendance      map[calc.AttendanceKey]bool
	levels          map[int64][]calc.AchievementLevel
	graduating      []string
}

// Load reads a snapshot document from disk.
func Load(path string) (*Store, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read snapshot %s", path)
	}
	return Parse(data)
}

// Fetch downloads a snapshot document; token, if set, is sent as Authorization.
func Fetch(url, token string) (*Store, error) {
	headers := map[string]string{
		"Accept": "application/json",
	}
	if token != "" {
		headers["Authorization"] = token
	}
	data, err := util.Fetch("GET", url, headers, bytes.NewReader(nil))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot fetch snapshot %s", url)
	}
	return Parse(data)
}

//
// Parse indexes a snapshot document. Only an unparseable document is
// an error; individual records with unusable numbers are skipped with
// a warning, except level boundaries which are kept as invalid so the
// classifier can report them.
//
func Parse(data []byte) (*Store, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("snapshot is not valid json")
	}
	doc := gjson.ParseBytes(data)

	s := &Store{
		courses:       map[int64]calc.Course{},
		settings:      map[int64]calc.CourseSettings{},
		exams:         map[int64][]calc.Exam{},
		examWeights:   map[int64]map[int64]decimal.Decimal{},
		questions:     map[int64][]calc.Question{},
		questionLinks: map[int64][]calc.OutcomeLink{},
		outcomes:      map[int64][]calc.CourseOutcome{},
		outcomeLinks:  map[int64][]calc.OutcomeLink{},
		students:      map[int64][]calc.Student{},
		scores:        map[calc.ScoreKey]decimal.Decimal{},
		attendance:    map[calc.AttendanceKey]bool{},
		levels:        map[int64][]calc.AchievementLevel{},
	}

	doc.Get("courses").ForEach(func(_, c gjson.Result) bool {
		course := calc.Course{
			ID:       c.Get("id").Int(),
			Code:     c.Get("code").String(),
			Name:     c.Get("name").String(),
			Semester: c.Get("semester").String(),
			Weight:   decimalOr(c.Get("weight"), calc.DefaultLinkWeight),
		}
		s.courses[course.ID] = course
		if st := c.Get("settings"); st.Exists() {
			method := calc.Method(st.Get("method").String())
			if method == "" {
				method = calc.Absolute
			}
			s.settings[course.ID] = calc.CourseSettings{
				CourseID:  course.ID,
				Method:    method,
				Threshold: decimalOr(st.Get("threshold"), calc.DefaultThreshold),
				Excluded:  st.Get("excluded").Bool(),
			}
		}
		return true
	})

	doc.Get("exams").ForEach(func(_, e gjson.Result) bool {
		exam := calc.Exam{
			ID:          e.Get("id").Int(),
			CourseID:    e.Get("courseId").Int(),
			Name:        e.Get("name").String(),
			IsMandatory: e.Get("mandatory").Bool(),
			IsMakeup:    e.Get("makeup").Bool(),
			IsFinal:     e.Get("final").Bool(),
		}
		if mf := e.Get("makeupFor"); mf.Exists() && mf.Type == gjson.Number {
			base := mf.Int()
			exam.MakeupFor = &base
		}
		s.exams[exam.CourseID] = append(s.exams[exam.CourseID], exam)
		return true
	})

	doc.Get("examWeights").ForEach(func(_, w gjson.Result) bool {
		weight, ok := decimalOf(w.Get("weight"))
		if !ok {
			logger.Warnf("skipping exam weight for exam %d: bad weight %q", w.Get("examId").Int(), w.Get("weight").Raw)
			return true
		}
		courseID := w.Get("courseId").Int()
		if s.examWeights[courseID] == nil {
			s.examWeights[courseID] = map[int64]decimal.Decimal{}
		}
		s.examWeights[courseID][w.Get("examId").Int()] = weight
		return true
	})

	doc.Get("questions").ForEach(func(_, q gjson.Result) bool {
		maxScore, ok := decimalOf(q.Get("maxScore"))
		if !ok {
			logger.Warnf("skipping question %d: bad maxScore %q", q.Get("id").Int(), q.Get("maxScore").Raw)
			return true
		}
		question := calc.Question{
			ID:       q.Get("id").Int(),
			ExamID:   q.Get("examId").Int(),
			Number:   int(q.Get("number").Int()),
			MaxScore: maxScore,
		}
		s.questions[question.ExamID] = append(s.questions[question.ExamID], question)
		s.questionLinks[question.ID] = links(q.Get("outcomes"))
		return true
	})

	doc.Get("courseOutcomes").ForEach(func(_, o gjson.Result) bool {
		co := calc.CourseOutcome{
			ID:          o.Get("id").Int(),
			CourseID:    o.Get("courseId").Int(),
			Code:        o.Get("code").String(),
			Description: o.Get("description").String(),
		}
		s.outcomes[co.CourseID] = append(s.outcomes[co.CourseID], co)
		s.outcomeLinks[co.ID] = links(o.Get("programOutcomes"))
		return true
	})

	doc.Get("programOutcomes").ForEach(func(_, p gjson.Result) bool {
		s.programOutcomes = append(s.programOutcomes, calc.ProgramOutcome{
			ID:          p.Get("id").Int(),
			Code:        p.Get("code").String(),
			Description: p.Get("description").String(),
		})
		return true
	})

	doc.Get("students").ForEach(func(_, st gjson.Result) bool {
		student := calc.Student{
			ID:        st.Get("id").Int(),
			CourseID:  st.Get("courseId").Int(),
			Number:    st.Get("number").String(),
			FirstName: st.Get("firstName").String(),
			LastName:  st.Get("lastName").String(),
			Excluded:  st.Get("excluded").Bool(),
		}
		s.students[student.CourseID] = append(s.students[student.CourseID], student)
		return true
	})

	doc.Get("scores").ForEach(func(_, sc gjson.Result) bool {
		key := calc.ScoreKey{
			StudentID:  sc.Get("studentId").Int(),
			QuestionID: sc.Get("questionId").Int(),
			ExamID:     sc.Get("examId").Int(),
		}
		v, ok := decimalOf(sc.Get("score"))
		if !ok {
			logger.Warnf("skipping score %+v: bad value %q", key, sc.Get("score").Raw)
			return true
		}
		s.scores[key] = v
		return true
	})

	doc.Get("attendance").ForEach(func(_, a gjson.Result) bool {
		key := calc.AttendanceKey{StudentID: a.Get("studentId").Int(), ExamID: a.Get("examId").Int()}
		attended := a.Get("attended")
		s.attendance[key] = !attended.Exists() || attended.Bool()
		return true
	})

	doc.Get("achievementLevels").ForEach(func(_, l gjson.Result) bool {
		level := calc.AchievementLevel{
			ID:       l.Get("id").Int(),
			CourseID: l.Get("courseId").Int(),
			Name:     l.Get("name").String(),
			MinScore: nullDecimalOf(l.Get("min")),
			MaxScore: nullDecimalOf(l.Get("max")),
			Color:    l.Get("color").String(),
		}
		if level.Color == "" {
			level.Color = "primary"
		}
		s.levels[level.CourseID] = append(s.levels[level.CourseID], level)
		return true
	})

	doc.Get("graduatingStudents").ForEach(func(_, n gjson.Result) bool {
		s.graduating = append(s.graduating, n.String())
		return true
	})

	return s, nil
}

// links reads [{id, weight}], defaulting a missing weight to 1.
func links(arr gjson.Result) []calc.OutcomeLink {
	var out []calc.OutcomeLink
	arr.ForEach(func(_, l gjson.Result) bool {
		out = append(out, calc.OutcomeLink{
			TargetID: l.Get("id").Int(),
			Weight:   decimalOr(l.Get("weight"), calc.DefaultLinkWeight),
		})
		return true
	})
	return out
}

// decimalOf reads a number (raw text, so no float round trip) or numeric string.
func decimalOf(r gjson.Result) (decimal.Decimal, bool) {
	var text string
	switch r.Type {
	case gjson.Number:
		text = r.Raw
	case gjson.String:
		text = r.Str
	default:
		return decimal.Zero, false
	}
	d, err := calc.ParseScore(text)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func decimalOr(r gjson.Result, def decimal.Decimal) decimal.Decimal {
	if d, ok := decimalOf(r); ok {
		return d
	}
	return def
}

func nullDecimalOf(r gjson.Result) decimal.NullDecimal {
	d, ok := decimalOf(r)
	return decimal.NullDecimal{Decimal: d, Valid: ok}
}

func (s *Store) GetCourses(ctx context.Context) ([]calc.Course, error) {
	courses := make([]calc.Course, 0, len(s.courses))
	for _, c := range s.courses {
		courses = append(courses, c)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].ID < courses[j].ID })
	return courses, nil
}

func (s *Store) GetCourse(ctx context.Context, id int64) (calc.Course, error) {
	c, ok := s.courses[id]
	if !ok {
		return calc.Course{}, errors.Wrapf(calc.ErrNotFound, "course %d", id)
	}
	return c, nil
}

func (s *Store) GetCourseSettings(ctx context.Context, courseID int64) (calc.CourseSettings, error) {
	st, ok := s.settings[courseID]
	if !ok {
		return calc.CourseSettings{}, errors.Wrapf(calc.ErrNotFound, "settings for course %d", courseID)
	}
	return st, nil
}

func (s *Store) GetExams(ctx context.Context, courseID int64) ([]calc.Exam, error) {
	return append([]calc.Exam(nil), s.exams[courseID]...), nil
}

func (s *Store) GetExamWeights(ctx context.Context, courseID int64) (map[int64]decimal.Decimal, error) {
	weights := make(map[int64]decimal.Decimal, len(s.examWeights[courseID]))
	for id, w := range s.examWeights[courseID] {
		weights[id] = w
	}
	return weights, nil
}

func (s *Store) GetQuestions(ctx context.Context, examID int64) ([]calc.Question, error) {
	return append([]calc.Question(nil), s.questions[examID]...), nil
}

func (s *Store) GetQuestionOutcomeLinks(ctx context.Context, questionID int64) ([]calc.OutcomeLink, error) {
	return append([]calc.OutcomeLink(nil), s.questionLinks[questionID]...), nil
}

func (s *Store) GetCourseOutcomes(ctx context.Context, courseID int64) ([]calc.CourseOutcome, error) {
	return append([]calc.CourseOutcome(nil), s.outcomes[courseID]...), nil
}

func (s *Store) GetOutcomeLinks(ctx context.Context, courseOutcomeID int64) ([]calc.OutcomeLink, error) {
	return append([]calc.OutcomeLink(nil), s.outcomeLinks[courseOutcomeID]...), nil
}

func (s *Store) GetProgramOutcomes(ctx context.Context) ([]calc.ProgramOutcome, error) {
	return append([]calc.ProgramOutcome(nil), s.programOutcomes...), nil
}

func (s *Store) GetStudents(ctx context.Context, courseID int64) ([]calc.Student, error) {
	return append([]calc.Student(nil), s.students[courseID]...), nil
}

func (s *Store) GetScores(ctx context.Context, studentIDs, examIDs []int64) (map[calc.ScoreKey]decimal.Decimal, error) {
	students, exams := idSet(studentIDs), idSet(examIDs)
	scores := map[calc.ScoreKey]decimal.Decimal{}
	for k, v := range s.scores {
		if students[k.StudentID] && exams[k.ExamID] {
			scores[k] = v
		}
	}
	return scores, nil
}

func (s *Store) GetAttendance(ctx context.Context, studentIDs, examIDs []int64) (map[calc.AttendanceKey]bool, error) {
	students, exams := idSet(studentIDs), idSet(examIDs)
	attendance := map[calc.AttendanceKey]bool{}
	for k, v := range s.attendance {
		if students[k.StudentID] && exams[k.ExamID] {
			attendance[k] = v
		}
	}
	return attendance, nil
}

func (s *Store) GetAchievementLevels(ctx context.Context, courseID int64) ([]calc.AchievementLevel, error) {
	return append([]calc.AchievementLevel(nil), s.levels[courseID]...), nil
}

func (s *Store) GetGraduatingStudents(ctx context.Context) ([]string, error) {
	return append([]string(nil), s.graduating...), nil
}

func idSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
