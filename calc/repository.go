package calc

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound marks a missing entity; stores wrap it.
	ErrNotFound = errors.New("not found")
	// ErrInvalidMethod is returned for an unknown aggregation method.
	ErrInvalidMethod = errors.New("method must be absolute or relative")
)

//
// RepositoryError is the error kind for storage failures.
// The engine never recovers from one; it is handed back to the
// caller as is.
//
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// Cause supports errors.Cause from pkg/errors.
func (e *RepositoryError) Cause() error { return e.Err }

// StoreError wraps err as a *RepositoryError, leaving nil alone.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RepositoryError{Op: op, Err: err}
}

// IsRepositoryError reports whether err came from storage.
func IsRepositoryError(err error) bool {
	var re *RepositoryError
	return errors.As(err, &re)
}

//
// Repository is the read-only view of the entity store the engine
// consumes. Every method reads; none mutates.
//
type Repository interface {
	GetCourses(ctx context.Context) ([]Course, error)
	GetCourse(ctx context.Context, id int64) (Course, error)
	// GetCourseSettings returns ErrNotFound when a course has no settings.
	GetCourseSettings(ctx context.Context, courseID int64) (CourseSettings, error)
	GetExams(ctx context.Context, courseID int64) ([]Exam, error)
	// GetExamWeights maps exam id to raw weight; exams with no record are absent.
	GetExamWeights(ctx context.Context, courseID int64) (map[int64]decimal.Decimal, error)
	GetQuestions(ctx context.Context, examID int64) ([]Question, error)
	GetQuestionOutcomeLinks(ctx context.Context, questionID int64) ([]OutcomeLink, error)
	GetCourseOutcomes(ctx context.Context, courseID int64) ([]CourseOutcome, error)
	GetOutcomeLinks(ctx context.Context, courseOutcomeID int64) ([]OutcomeLink, error)
	GetProgramOutcomes(ctx context.Context) ([]ProgramOutcome, error)
	GetStudents(ctx context.Context, courseID int64) ([]Student, error)
	GetScores(ctx context.Context, studentIDs, examIDs []int64) (map[ScoreKey]decimal.Decimal, error)
	GetAttendance(ctx context.Context, studentIDs, examIDs []int64) (map[AttendanceKey]bool, error)
	// GetAchievementLevels takes a course id, or GlobalScope.
	GetAchievementLevels(ctx context.Context, courseID int64) ([]AchievementLevel, error)
}

// CohortSource is implemented by stores that know the graduating cohort.
type CohortSource interface {
	GetGraduatingStudents(ctx context.Context) ([]string, error)
}

//
// BatchSource is implemented by stores that can read the questions
// and outcome links of many exams or outcomes in one query each.
// Results are keyed by the owning id; ids with no rows are absent.
//
type BatchSource interface {
	GetQuestionsFor(ctx context.Context, examIDs []int64) (map[int64][]Question, error)
	GetQuestionOutcomeLinksFor(ctx context.Context, questionIDs []int64) (map[int64][]OutcomeLink, error)
	GetOutcomeLinksFor(ctx context.Context, courseOutcomeIDs []int64) (map[int64][]OutcomeLink, error)
}

//
// ConsistentReader is implemented by stores that can serve a group of
// reads from one point-in-time view, such as a read-only transaction.
// fn's error is returned as is.
//
type ConsistentReader interface {
	ReadConsistent(ctx context.Context, fn func(Repository) error) error
}
