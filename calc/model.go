//
// package calc rolls raw per-question exam scores up through
// question -> course outcome -> program outcome, summarises them
// for a class, combines classes across courses, and classifies any
// percentage into a named achievement band.
//
// All arithmetic is exact decimal (shopspring/decimal); nothing in
// this package compares a float against a score boundary.
//
package calc

import (
	"github.com/shopspring/decimal"
)

// GlobalScope selects the institution-wide achievement levels.
const GlobalScope int64 = 0

//
// Method selects how per-student outcome scores are reduced
// to a single class figure.
//
type Method string

const (
	// Absolute: class score is the mean of student scores.
	Absolute Method = "absolute"
	// Relative: class score is the percentage of students at or
	// above the course success threshold.
	Relative Method = "relative"
)

// ParseMethod accepts the stored/requested method names.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case Absolute, Relative:
		return Method(s), nil
	case "":
		return "", nil
	}
	return "", ErrInvalidMethod
}

type Course struct {
	ID       int64           `json:"id"`
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Semester string          `json:"semester"`
	Weight   decimal.Decimal `json:"weight"`
}

type CourseSettings struct {
	CourseID  int64           `json:"courseId"`
	Method    Method          `json:"method"`
	Threshold decimal.Decimal `json:"threshold"`
	Excluded  bool            `json:"excluded"`
}

// DefaultSettings are used for a course with no settings record.
func DefaultSettings(courseID int64) CourseSettings {
	return CourseSettings{
		CourseID:  courseID,
		Method:    Absolute,
		Threshold: DefaultThreshold,
	}
}

type Exam struct {
	ID          int64  `json:"id"`
	CourseID    int64  `json:"courseId"`
	Name        string `json:"name"`
	IsMandatory bool   `json:"mandatory"`
	IsMakeup    bool   `json:"makeup"`
	IsFinal     bool   `json:"final"`
	// MakeupFor is the base exam a makeup replaces, nil for base exams.
	MakeupFor *int64 `json:"makeupFor,omitempty"`
}

type Question struct {
	ID       int64           `json:"id"`
	ExamID   int64           `json:"examId"`
	Number   int             `json:"number"`
	MaxScore decimal.Decimal `json:"maxScore"`
}

//
// OutcomeLink is one weighted edge of the outcome graph: a question
// to a course outcome, or a course outcome to a program outcome.
// A zero-value Weight is never produced by the stores; an absent
// weight column is read as DefaultLinkWeight.
//
type OutcomeLink struct {
	TargetID int64           `json:"id"`
	Weight   decimal.Decimal `json:"weight"`
}

type CourseOutcome struct {
	ID          int64  `json:"id"`
	CourseID    int64  `json:"courseId"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

type ProgramOutcome struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

type Student struct {
	ID        int64  `json:"id"`
	CourseID  int64  `json:"courseId"`
	Number    string `json:"number"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	// Excluded is the manual exclusion flag; it overrides all calculation.
	Excluded bool `json:"excluded"`
}

func (s Student) Name() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

type ScoreKey struct {
	StudentID  int64
	QuestionID int64
	ExamID     int64
}

type AttendanceKey struct {
	StudentID int64
	ExamID    int64
}

//
// AchievementLevel is a named, inclusive [MinScore, MaxScore] band.
// Boundaries are nullable so a malformed stored value reaches the
// classifier as invalid instead of as a silent zero.
//
type AchievementLevel struct {
	ID       int64               `json:"id"`
	CourseID int64               `json:"courseId"`
	Name     string              `json:"name"`
	MinScore decimal.NullDecimal `json:"minScore"`
	MaxScore decimal.NullDecimal `json:"maxScore"`
	Color    string              `json:"color"`
}

// NewLevel builds a level with valid boundaries.
func NewLevel(name string, min, max decimal.Decimal, color string) AchievementLevel {
	return AchievementLevel{
		Name:     name,
		MinScore: decimal.NullDecimal{Decimal: min, Valid: true},
		MaxScore: decimal.NullDecimal{Decimal: max, Valid: true},
		Color:    color,
	}
}
