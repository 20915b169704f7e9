package calc

import (
	"context"
	"sort"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/nsip/otf-outcomes/internal/util"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds how many courses ComputeAll loads at once.
const DefaultConcurrency = 8

var logger = log.New("calc")

// SetLogLevel sets the level of the calc package logger.
func SetLogLevel(lvl log.Lvl) {
	logger.SetLevel(lvl)
}

//
// Engine loads snapshots from a Repository and computes on them.
// It holds no results between calls; the only state it may share is
// the injected grouping cache.
//
type Engine struct {
	repo        Repository
	cache       GroupingCache
	now         func() time.Time
	concurrency int
}

type EngineOption func(*Engine)

// WithGroupingCache sets the cache used by OutcomeGroups.
func WithGroupingCache(c GroupingCache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

// WithConcurrency sets how many courses ComputeAll works on at once.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithClock replaces time.Now for grouping timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(repo Repository, opts ...EngineOption) *Engine {
	e := &Engine{repo: repo, now: time.Now, concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeCourseResult loads course courseID and computes it with method
// (empty: the course's own setting).
func (e *Engine) ComputeCourseResult(ctx context.Context, courseID int64, method Method) (*CourseResult, error) {
	return e.Compute(ctx, courseID, Params{Method: method})
}

func (e *Engine) Compute(ctx context.Context, courseID int64, p Params) (*CourseResult, error) {
	if _, err := ParseMethod(string(p.Method)); err != nil {
		return nil, err
	}
	snap, err := LoadSnapshot(ctx, e.repo, courseID)
	if err != nil {
		return nil, errors.WithMessagef(err, "course %d", courseID)
	}
	return Compute(snap, p), nil
}

//
// ComputeAll computes courses concurrently, at most the engine's
// concurrency at a time, and returns results in the order of
// courseIDs. The first error cancels the rest.
//
func (e *Engine) ComputeAll(ctx context.Context, courseIDs []int64, p Params) ([]*CourseResult, error) {
	defer util.TimeTrack(time.Now(), "compute all courses")

	results := make([]*CourseResult, len(courseIDs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, id := range courseIDs {
		i, id := i, id
		g.Go(func() error {
			r, err := e.Compute(ctx, id, p)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// CourseIDs lists every course in the store.
func (e *Engine) CourseIDs(ctx context.Context) ([]int64, error) {
	courses, err := e.repo.GetCourses(ctx)
	if err != nil {
		return nil, asStoreError("get courses", err)
	}
	ids := make([]int64, 0, len(courses))
	for _, c := range courses {
		ids = append(ids, c.ID)
	}
	sortIDs(ids)
	return ids, nil
}

//
// Levels returns the bands used to classify a course's scores:
// its own levels, else the global levels, else DefaultLevels.
// Pass GlobalScope to skip the course step.
//
func (e *Engine) Levels(ctx context.Context, courseID int64) ([]AchievementLevel, error) {
	if courseID != GlobalScope {
		levels, err := e.repo.GetAchievementLevels(ctx, courseID)
		if err != nil {
			return nil, asStoreError("get achievement levels", err)
		}
		if len(levels) > 0 {
			return levels, nil
		}
	}
	levels, err := e.repo.GetAchievementLevels(ctx, GlobalScope)
	if err != nil {
		return nil, asStoreError("get global achievement levels", err)
	}
	if len(levels) == 0 {
		return DefaultLevels(), nil
	}
	return levels, nil
}

// Cohort reads the graduating cohort, when the store knows it.
func (e *Engine) Cohort(ctx context.Context) (map[string]bool, error) {
	src, ok := e.repo.(CohortSource)
	if !ok {
		return map[string]bool{}, nil
	}
	numbers, err := src.GetGraduatingStudents(ctx)
	if err != nil {
		return nil, asStoreError("get graduating students", err)
	}
	cohort := make(map[string]bool, len(numbers))
	for _, n := range numbers {
		cohort[n] = true
	}
	return cohort, nil
}

//
// OutcomeGroups returns the similarity grouping of every course
// outcome in the store, from the cache when one is held for the same
// threshold and refresh is false.
//
func (e *Engine) OutcomeGroups(ctx context.Context, threshold float64, refresh bool) (*OutcomeGrouping, error) {
	if e.cache != nil && !refresh {
		g, ok, err := e.cache.Get(ctx, threshold)
		if err != nil {
			logger.Warnf("grouping cache read failed: %v", err)
		} else if ok {
			return g, nil
		}
	}

	outcomes, err := e.Outcomes(ctx)
	if err != nil {
		return nil, err
	}

	g := GroupSimilarOutcomes(outcomes, threshold, e.now())
	logger.Infoj(log.JSON{
		"event":      "outcome grouping",
		"threshold":  threshold,
		"groups":     len(g.Groups),
		"nonGrouped": len(g.NonGrouped),
	})

	if e.cache != nil {
		if err := e.cache.Put(ctx, g); err != nil {
			logger.Warnf("grouping cache write failed: %v", err)
		}
	}
	return g, nil
}

// ProgramOutcomes lists every program outcome in the store.
func (e *Engine) ProgramOutcomes(ctx context.Context) ([]ProgramOutcome, error) {
	pos, err := e.repo.GetProgramOutcomes(ctx)
	if err != nil {
		return nil, asStoreError("get program outcomes", err)
	}
	return pos, nil
}

// Outcomes lists the course outcomes of every course, by course then id.
func (e *Engine) Outcomes(ctx context.Context) ([]CourseOutcome, error) {
	ids, err := e.CourseIDs(ctx)
	if err != nil {
		return nil, err
	}
	var outcomes []CourseOutcome
	for _, id := range ids {
		cos, err := e.repo.GetCourseOutcomes(ctx, id)
		if err != nil {
			return nil, asStoreError("get course outcomes", err)
		}
		start := len(outcomes)
		outcomes = append(outcomes, cos...)
		added := outcomes[start:]
		sort.Slice(added, func(i, j int) bool { return added[i].ID < added[j].ID })
	}
	return outcomes, nil
}

// InvalidateGroups drops any cached grouping.
func (e *Engine) InvalidateGroups(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Invalidate(ctx)
}
