//
// package pgstore reads the outcome tables of the course management
// database (postgres) and serves them as a calc.Repository.
//
package pgstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/nsip/otf-outcomes/calc"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Store struct {
	db *sql.DB
	// db, or the transaction of a ReadConsistent call
	q querier
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

//
// ReadConsistent runs fn against a Store bound to one read-only
// repeatable-read transaction, so every read fn makes sees the same
// committed state.
//
func (s *Store) ReadConsistent(ctx context.Context, fn func(calc.Repository) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return calc.StoreError("begin read transaction", err)
	}
	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return calc.StoreError("commit read transaction", tx.Commit())
}

//
// Open connects with a postgres url or key=value dsn and pings the
// server before returning.
//
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open database")
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "cannot reach database")
	}
	return New(db), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const courseColumns = `SELECT id, code, name, semester, course_weight FROM course`

func scanCourse(row interface{ Scan(...interface{}) error }) (calc.Course, error) {
	var c calc.Course
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Semester, &c.Weight)
	return c, err
}

func (s *Store) GetCourses(ctx context.Context) ([]calc.Course, error) {
	rows, err := s.q.QueryContext(ctx, courseColumns+` ORDER BY id`)
	if err != nil {
		return nil, calc.StoreError("get courses", err)
	}
	defer rows.Close()

	var courses []calc.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, calc.StoreError("scan course", err)
		}
		courses = append(courses, c)
	}
	return courses, calc.StoreError("get courses", rows.Err())
}

func (s *Store) GetCourse(ctx context.Context, id int64) (calc.Course, error) {
	c, err := scanCourse(s.q.QueryRowContext(ctx, courseColumns+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return calc.Course{}, errors.Wrapf(calc.ErrNotFound, "course %d", id)
	}
	if err != nil {
		return calc.Course{}, calc.StoreError("get course", err)
	}
	return c, nil
}

func (s *Store) GetCourseSettings(ctx context.Context, courseID int64) (calc.CourseSettings, error) {
	st := calc.CourseSettings{CourseID: courseID}
	var method string
	err := s.q.QueryRowContext(ctx,
		`SELECT success_rate_method, relative_success_threshold, excluded
		   FROM course_settings WHERE course_id = $1`, courseID).
		Scan(&method, &st.Threshold, &st.Excluded)
	if err == sql.ErrNoRows {
		return calc.CourseSettings{}, errors.Wrapf(calc.ErrNotFound, "settings for course %d", courseID)
	}
	if err != nil {
		return calc.CourseSettings{}, calc.StoreError("get course settings", err)
	}
	st.Method = calc.Method(method)
	return st, nil
}

func (s *Store) GetExams(ctx context.Context, courseID int64) ([]calc.Exam, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, course_id, name, is_mandatory, is_makeup, is_final, makeup_for
		   FROM exam WHERE course_id = $1 ORDER BY id`, courseID)
	if err != nil {
		return nil, calc.StoreError("get exams", err)
	}
	defer rows.Close()

	var exams []calc.Exam
	for rows.Next() {
		var e calc.Exam
		var makeupFor sql.NullInt64
		if err := rows.Scan(&e.ID, &e.CourseID, &e.Name, &e.IsMandatory, &e.IsMakeup, &e.IsFinal, &makeupFor); err != nil {
			return nil, calc.StoreError("scan exam", err)
		}
		if makeupFor.Valid {
			base := makeupFor.Int64
			e.MakeupFor = &base
		}
		exams = append(exams, e)
	}
	return exams, calc.StoreError("get exams", rows.Err())
}

func (s *Store) GetExamWeights(ctx context.Context, courseID int64) (map[int64]decimal.Decimal, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT exam_id, weight FROM exam_weight WHERE course_id = $1`, courseID)
	if err != nil {
		return nil, calc.StoreError("get exam weights", err)
	}
	defer rows.Close()

	weights := map[int64]decimal.Decimal{}
	for rows.Next() {
		var examID int64
		var w decimal.Decimal
		if err := rows.Scan(&examID, &w); err != nil {
			return nil, calc.StoreError("scan exam weight", err)
		}
		weights[examID] = w
	}
	return weights, calc.StoreError("get exam weights", rows.Err())
}

func (s *Store) GetQuestions(ctx context.Context, examID int64) ([]calc.Question, error) {
	questions, err := s.GetQuestionsFor(ctx, []int64{examID})
	if err != nil {
		return nil, err
	}
	return questions[examID], nil
}

// GetQuestionsFor reads the questions of every exam in examIDs, by exam.
func (s *Store) GetQuestionsFor(ctx context.Context, examIDs []int64) (map[int64][]calc.Question, error) {
	questions := map[int64][]calc.Question{}
	if len(examIDs) == 0 {
		return questions, nil
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT id, exam_id, number, max_score FROM question
		  WHERE exam_id = ANY($1) ORDER BY exam_id, number, id`, pq.Array(examIDs))
	if err != nil {
		return nil, calc.StoreError("get questions", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q calc.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Number, &q.MaxScore); err != nil {
			return nil, calc.StoreError("scan question", err)
		}
		questions[q.ExamID] = append(questions[q.ExamID], q)
	}
	return questions, calc.StoreError("get questions", rows.Err())
}

func (s *Store) GetQuestionOutcomeLinks(ctx context.Context, questionID int64) ([]calc.OutcomeLink, error) {
	links, err := s.GetQuestionOutcomeLinksFor(ctx, []int64{questionID})
	return links[questionID], err
}

// GetQuestionOutcomeLinksFor reads question -> course outcome links, by question.
func (s *Store) GetQuestionOutcomeLinksFor(ctx context.Context, questionIDs []int64) (map[int64][]calc.OutcomeLink, error) {
	return s.links(ctx, "get question outcome links",
		`SELECT question_id, course_outcome_id, relative_weight FROM question_course_outcome
		  WHERE question_id = ANY($1) ORDER BY question_id, course_outcome_id`, questionIDs)
}

func (s *Store) GetOutcomeLinks(ctx context.Context, courseOutcomeID int64) ([]calc.OutcomeLink, error) {
	links, err := s.GetOutcomeLinksFor(ctx, []int64{courseOutcomeID})
	return links[courseOutcomeID], err
}

// GetOutcomeLinksFor reads course outcome -> program outcome links, by course outcome.
func (s *Store) GetOutcomeLinksFor(ctx context.Context, courseOutcomeIDs []int64) (map[int64][]calc.OutcomeLink, error) {
	return s.links(ctx, "get outcome links",
		`SELECT course_outcome_id, program_outcome_id, relative_weight FROM course_outcome_program_outcome
		  WHERE course_outcome_id = ANY($1) ORDER BY course_outcome_id, program_outcome_id`, courseOutcomeIDs)
}

//
// links reads (owner, target, weight) rows grouped by owner; a NULL
// weight is the default link weight.
//
func (s *Store) links(ctx context.Context, op, query string, ids []int64) (map[int64][]calc.OutcomeLink, error) {
	links := map[int64][]calc.OutcomeLink{}
	if len(ids) == 0 {
		return links, nil
	}

	rows, err := s.q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, calc.StoreError(op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var owner int64
		var l calc.OutcomeLink
		var w decimal.NullDecimal
		if err := rows.Scan(&owner, &l.TargetID, &w); err != nil {
			return nil, calc.StoreError(op, err)
		}
		l.Weight = calc.DefaultLinkWeight
		if w.Valid {
			l.Weight = w.Decimal
		}
		links[owner] = append(links[owner], l)
	}
	return links, calc.StoreError(op, rows.Err())
}

func (s *Store) GetCourseOutcomes(ctx context.Context, courseID int64) ([]calc.CourseOutcome, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, course_id, code, description FROM course_outcome WHERE course_id = $1 ORDER BY id`, courseID)
	if err != nil {
		return nil, calc.StoreError("get course outcomes", err)
	}
	defer rows.Close()

	var outcomes []calc.CourseOutcome
	for rows.Next() {
		var o calc.CourseOutcome
		if err := rows.Scan(&o.ID, &o.CourseID, &o.Code, &o.Description); err != nil {
			return nil, calc.StoreError("scan course outcome", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, calc.StoreError("get course outcomes", rows.Err())
}

func (s *Store) GetProgramOutcomes(ctx context.Context) ([]calc.ProgramOutcome, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, code, description FROM program_outcome ORDER BY code`)
	if err != nil {
		return nil, calc.StoreError("get program outcomes", err)
	}
	defer rows.Close()

	var outcomes []calc.ProgramOutcome
	for rows.Next() {
		var o calc.ProgramOutcome
		if err := rows.Scan(&o.ID, &o.Code, &o.Description); err != nil {
			return nil, calc.StoreError("scan program outcome", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, calc.StoreError("get program outcomes", rows.Err())
}

func (s *Store) GetStudents(ctx context.Context, courseID int64) ([]calc.Student, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, course_id, student_id, first_name, COALESCE(last_name, ''), excluded
		   FROM student WHERE course_id = $1 ORDER BY id`, courseID)
	if err != nil {
		return nil, calc.StoreError("get students", err)
	}
	defer rows.Close()

	var students []calc.Student
	for rows.Next() {
		var st calc.Student
		if err := rows.Scan(&st.ID, &st.CourseID, &st.Number, &st.FirstName, &st.LastName, &st.Excluded); err != nil {
			return nil, calc.StoreError("scan student", err)
		}
		students = append(students, st)
	}
	return students, calc.StoreError("get students", rows.Err())
}

//
// GetScores bulk-loads every score of the given students on the given
// exams in one query. Duplicate rows for a question keep the latest.
//
func (s *Store) GetScores(ctx context.Context, studentIDs, examIDs []int64) (map[calc.ScoreKey]decimal.Decimal, error) {
	scores := map[calc.ScoreKey]decimal.Decimal{}
	if len(studentIDs) == 0 || len(examIDs) == 0 {
		return scores, nil
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT student_id, question_id, exam_id, score FROM score
		  WHERE student_id = ANY($1) AND exam_id = ANY($2) ORDER BY id`,
		pq.Array(studentIDs), pq.Array(examIDs))
	if err != nil {
		return nil, calc.StoreError("get scores", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k calc.ScoreKey
		var v decimal.Decimal
		if err := rows.Scan(&k.StudentID, &k.QuestionID, &k.ExamID, &v); err != nil {
			return nil, calc.StoreError("scan score", err)
		}
		scores[k] = v
	}
	return scores, calc.StoreError("get scores", rows.Err())
}

func (s *Store) GetAttendance(ctx context.Context, studentIDs, examIDs []int64) (map[calc.AttendanceKey]bool, error) {
	attendance := map[calc.AttendanceKey]bool{}
	if len(studentIDs) == 0 || len(examIDs) == 0 {
		return attendance, nil
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT student_id, exam_id, attended FROM student_exam_attendance
		  WHERE student_id = ANY($1) AND exam_id = ANY($2) ORDER BY id`,
		pq.Array(studentIDs), pq.Array(examIDs))
	if err != nil {
		return nil, calc.StoreError("get attendance", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k calc.AttendanceKey
		var attended bool
		if err := rows.Scan(&k.StudentID, &k.ExamID, &attended); err != nil {
			return nil, calc.StoreError("scan attendance", err)
		}
		attendance[k] = attended
	}
	return attendance, calc.StoreError("get attendance", rows.Err())
}

//
// GetAchievementLevels reads a course's levels, or the global levels
// for calc.GlobalScope. Boundaries are scanned as nullable so a broken
// row reaches the classifier instead of failing the whole read.
//
func (s *Store) GetAchievementLevels(ctx context.Context, courseID int64) ([]calc.AchievementLevel, error) {
	var rows *sql.Rows
	var err error
	if courseID == calc.GlobalScope {
		rows, err = s.q.QueryContext(ctx,
			`SELECT id, 0, name, min_score, max_score, color
			   FROM global_achievement_level ORDER BY min_score DESC`)
	} else {
		rows, err = s.q.QueryContext(ctx,
			`SELECT id, course_id, name, min_score, max_score, color
			   FROM achievement_level WHERE course_id = $1 ORDER BY min_score DESC`, courseID)
	}
	if err != nil {
		return nil, calc.StoreError("get achievement levels", err)
	}
	defer rows.Close()

	var levels []calc.AchievementLevel
	for rows.Next() {
		var l calc.AchievementLevel
		if err := rows.Scan(&l.ID, &l.CourseID, &l.Name, &l.MinScore, &l.MaxScore, &l.Color); err != nil {
			return nil, calc.StoreError("scan achievement level", err)
		}
		levels = append(levels, l)
	}
	return levels, calc.StoreError("get achievement levels", rows.Err())
}

func (s *Store) GetGraduatingStudents(ctx context.Context) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT student_id FROM graduating_student ORDER BY student_id`)
	if err != nil {
		return nil, calc.StoreError("get graduating students", err)
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, calc.StoreError("scan graduating student", err)
		}
		numbers = append(numbers, n)
	}
	return numbers, calc.StoreError("get graduating students", rows.Err())
}
