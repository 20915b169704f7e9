package calc

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

//
// Snapshot is every table one course calculation needs, read once.
// Computation runs only against a Snapshot, so the store is never
// queried inside a scoring loop and data cannot change mid-run.
// A Snapshot is not modified after LoadSnapshot returns and may be
// shared between goroutines.
//
type Snapshot struct {
	Course   Course
	Settings CourseSettings
	// Exams of the course, base and makeup, ordered by id.
	Exams []Exam
	// RawWeights holds stored exam weights; missing exams are absent.
	RawWeights map[int64]decimal.Decimal
	// Questions by exam id, ordered by number.
	Questions map[int64][]Question
	// QuestionLinks by question id: the course outcomes it assesses.
	QuestionLinks map[int64][]OutcomeLink
	// Outcomes of the course, ordered by id.
	Outcomes []CourseOutcome
	// OutcomeLinks by course outcome id: the program outcomes it feeds.
	OutcomeLinks    map[int64][]OutcomeLink
	ProgramOutcomes []ProgramOutcome
	// Students of the course, ordered by id.
	Students   []Student
	Scores     map[ScoreKey]decimal.Decimal
	Attendance map[AttendanceKey]bool
}

//
// Attended reports whether a student sat an exam.
// Having no attendance record means the student attended.
//
func (s *Snapshot) Attended(studentID, examID int64) bool {
	attended, ok := s.Attendance[AttendanceKey{StudentID: studentID, ExamID: examID}]
	if !ok {
		return true
	}
	return attended
}

// Score returns the recorded score for one question, if any.
func (s *Snapshot) Score(studentID, questionID, examID int64) (decimal.Decimal, bool) {
	v, ok := s.Scores[ScoreKey{StudentID: studentID, QuestionID: questionID, ExamID: examID}]
	return v, ok
}

//
// LoadSnapshot reads everything course courseID needs in one pass.
// A ConsistentReader store serves the whole load from one view and a
// BatchSource store reads questions and links in bulk.
// Storage errors are returned wrapped as *RepositoryError; a course
// without settings gets DefaultSettings.
//
func LoadSnapshot(ctx context.Context, repo Repository, courseID int64) (*Snapshot, error) {
	cr, ok := repo.(ConsistentReader)
	if !ok {
		return loadSnapshot(ctx, repo, courseID)
	}

	var snap *Snapshot
	err := cr.ReadConsistent(ctx, func(r Repository) error {
		var err error
		snap, err = loadSnapshot(ctx, r, courseID)
		return err
	})
	if err != nil {
		return nil, asStoreError("read snapshot", err)
	}
	return snap, nil
}

func loadSnapshot(ctx context.Context, repo Repository, courseID int64) (*Snapshot, error) {

	course, err := repo.GetCourse(ctx, courseID)
	if err != nil {
		return nil, asStoreError("get course", err)
	}

	settings, err := repo.GetCourseSettings(ctx, courseID)
	switch {
	case errors.Is(err, ErrNotFound):
		settings = DefaultSettings(courseID)
	case err != nil:
		return nil, asStoreError("get course settings", err)
	}

	snap := &Snapshot{
		Course:     course,
		Settings:   settings,
		Scores:     map[ScoreKey]decimal.Decimal{},
		Attendance: map[AttendanceKey]bool{},
	}

	if snap.Exams, err = repo.GetExams(ctx, courseID); err != nil {
		return nil, asStoreError("get exams", err)
	}
	sort.Slice(snap.Exams, func(i, j int) bool { return snap.Exams[i].ID < snap.Exams[j].ID })
	examIDs := make([]int64, 0, len(snap.Exams))
	for _, exam := range snap.Exams {
		examIDs = append(examIDs, exam.ID)
	}

	if snap.RawWeights, err = repo.GetExamWeights(ctx, courseID); err != nil {
		return nil, asStoreError("get exam weights", err)
	}

	batch, _ := repo.(BatchSource)

	if snap.Questions, err = loadQuestions(ctx, repo, batch, examIDs); err != nil {
		return nil, err
	}
	var questionIDs []int64
	for _, examID := range examIDs {
		questions := snap.Questions[examID]
		sort.SliceStable(questions, func(i, j int) bool { return questions[i].Number < questions[j].Number })
		for _, q := range questions {
			questionIDs = append(questionIDs, q.ID)
		}
	}
	if snap.QuestionLinks, err = loadLinks(ctx, "get question outcome links", questionIDs,
		repo.GetQuestionOutcomeLinks, batchFn(batch, BatchSource.GetQuestionOutcomeLinksFor)); err != nil {
		return nil, err
	}

	if snap.Outcomes, err = repo.GetCourseOutcomes(ctx, courseID); err != nil {
		return nil, asStoreError("get course outcomes", err)
	}
	sort.Slice(snap.Outcomes, func(i, j int) bool { return snap.Outcomes[i].ID < snap.Outcomes[j].ID })
	outcomeIDs := make([]int64, 0, len(snap.Outcomes))
	for _, co := range snap.Outcomes {
		outcomeIDs = append(outcomeIDs, co.ID)
	}
	if snap.OutcomeLinks, err = loadLinks(ctx, "get outcome links", outcomeIDs,
		repo.GetOutcomeLinks, batchFn(batch, BatchSource.GetOutcomeLinksFor)); err != nil {
		return nil, err
	}

	if snap.ProgramOutcomes, err = repo.GetProgramOutcomes(ctx); err != nil {
		return nil, asStoreError("get program outcomes", err)
	}

	if snap.Students, err = repo.GetStudents(ctx, courseID); err != nil {
		return nil, asStoreError("get students", err)
	}
	sort.Slice(snap.Students, func(i, j int) bool { return snap.Students[i].ID < snap.Students[j].ID })

	if len(snap.Students) == 0 || len(examIDs) == 0 {
		return snap, nil
	}
	studentIDs := make([]int64, 0, len(snap.Students))
	for _, s := range snap.Students {
		studentIDs = append(studentIDs, s.ID)
	}

	if snap.Scores, err = repo.GetScores(ctx, studentIDs, examIDs); err != nil {
		return nil, asStoreError("get scores", err)
	}
	if snap.Attendance, err = repo.GetAttendance(ctx, studentIDs, examIDs); err != nil {
		return nil, asStoreError("get attendance", err)
	}

	return snap, nil
}

func loadQuestions(ctx context.Context, repo Repository, batch BatchSource, examIDs []int64) (map[int64][]Question, error) {
	if batch != nil && len(examIDs) > 0 {
		questions, err := batch.GetQuestionsFor(ctx, examIDs)
		if err != nil {
			return nil, asStoreError("get questions", err)
		}
		if questions == nil {
			questions = map[int64][]Question{}
		}
		return questions, nil
	}

	questions := make(map[int64][]Question, len(examIDs))
	for _, examID := range examIDs {
		qs, err := repo.GetQuestions(ctx, examID)
		if err != nil {
			return nil, asStoreError("get questions", err)
		}
		questions[examID] = qs
	}
	return questions, nil
}

type linksFn func(ctx context.Context, id int64) ([]OutcomeLink, error)

type linksBatchFn func(ctx context.Context, ids []int64) (map[int64][]OutcomeLink, error)

// batchFn binds a BatchSource method, or returns nil without one.
func batchFn(b BatchSource, m func(BatchSource, context.Context, []int64) (map[int64][]OutcomeLink, error)) linksBatchFn {
	if b == nil {
		return nil
	}
	return func(ctx context.Context, ids []int64) (map[int64][]OutcomeLink, error) {
		return m(b, ctx, ids)
	}
}

// loadLinks reads the links of every id, in one call when many is set.
func loadLinks(ctx context.Context, op string, ids []int64, one linksFn, many linksBatchFn) (map[int64][]OutcomeLink, error) {
	if many != nil && len(ids) > 0 {
		links, err := many(ctx, ids)
		if err != nil {
			return nil, asStoreError(op, err)
		}
		if links == nil {
			links = map[int64][]OutcomeLink{}
		}
		return links, nil
	}

	links := make(map[int64][]OutcomeLink, len(ids))
	for _, id := range ids {
		ls, err := one(ctx, id)
		if err != nil {
			return nil, asStoreError(op, err)
		}
		links[id] = ls
	}
	return links, nil
}

// asStoreError keeps ErrNotFound and existing store errors recognisable.
func asStoreError(op string, err error) error {
	if IsRepositoryError(err) {
		return errors.WithMessage(err, op)
	}
	if errors.Is(err, ErrNotFound) {
		return errors.Wrap(err, op)
	}
	return StoreError(op, err)
}
