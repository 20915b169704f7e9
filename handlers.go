package otfoutcomes

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/nsip/otf-outcomes/calc"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

//
// request to classify a single score.
// Score is kept raw so numbers reach the classifier
// without a float round trip.
//
type ClassifyRequest struct {
	Score json.RawMessage `json:"score"`
	// levels of this course, 0 or omitted for the global levels
	CourseID int64 `json:"courseId"`
	// explicit levels override any stored ones
	Levels []calc.AchievementLevel `json:"levels"`
}

type CrossCourseRequest struct {
	// courses to combine, every course if empty
	CourseIDs []int64 `json:"courseIds"`
	// course id -> weight, overrides stored course weights
	Weights map[int64]decimal.Decimal `json:"weights"`
	// restrict to one student's own scores
	StudentNumber  string `json:"studentNumber"`
	Method         string `json:"method"`
	GraduatingOnly bool   `json:"graduatingOnly"`
}

type GroupAverageRequest struct {
	OutcomeIDs []int64 `json:"outcomeIds"`
}

// ProgramOutcomeAverage is one row of the cross-course response.
type ProgramOutcomeAverage struct {
	ProgramOutcome calc.ProgramOutcome  `json:"programOutcome"`
	Average        decimal.NullDecimal  `json:"average"`
	Achievement    *calc.Classification `json:"achievement,omitempty"`
}

//
// maps engine errors onto http errors
//
func httpError(err error) error {
	switch {
	case errors.Is(err, calc.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, calc.ErrInvalidMethod):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// scoreValue turns a raw json value into something calc.ParseScore accepts.
func scoreValue(raw json.RawMessage) interface{} {
	r := gjson.ParseBytes(raw)
	switch r.Type {
	case gjson.Number:
		return json.Number(r.Raw)
	case gjson.String:
		return r.Str
	}
	return nil
}

func (s *OtfOutcomesService) cohort(ctx context.Context, graduatingOnly bool) (map[string]bool, error) {
	if !graduatingOnly {
		return nil, nil
	}
	return s.engine.Cohort(ctx)
}

//
// classifies a score against course, global, explicit or default levels
// score: number or numeric string
//
func (s *OtfOutcomesService) buildClassifyHandler() echo.HandlerFunc {

	sName := s.serviceName
	sID := s.serviceID

	return func(c echo.Context) error {
		cr := &ClassifyRequest{}
		if err := c.Bind(cr); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		levels := cr.Levels
		if len(levels) == 0 {
			var err error
			if levels, err = s.engine.Levels(c.Request().Context(), cr.CourseID); err != nil {
				c.Logger().Errorf("level lookup error: %v", err)
				return httpError(err)
			}
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"classification":      calc.Classify(scoreValue(cr.Score), levels),
			"levelIssues":         calc.ValidateLevels(levels),
			"outcomesServiceID":   sID,
			"outcomesServiceName": sName,
		})
	}
}

//
// full calculation for one course
// method: absolute|relative, course setting if omitted
// graduatingOnly: restrict to the graduating cohort
//
func (s *OtfOutcomesService) buildCourseResultHandler() echo.HandlerFunc {

	return func(c echo.Context) error {
		ctx := c.Request().Context()

		courseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "course id must be numeric")
		}
		method, err := calc.ParseMethod(c.QueryParam("method"))
		if err != nil {
			return httpError(err)
		}
		graduatingOnly, _ := strconv.ParseBool(c.QueryParam("graduatingOnly"))
		cohort, err := s.cohort(ctx, graduatingOnly)
		if err != nil {
			return httpError(err)
		}

		result, err := s.engine.Compute(ctx, courseID, calc.Params{Method: method, Cohort: cohort})
		if err != nil {
			c.Logger().Errorf("course %d calculation error: %v", courseID, err)
			return httpError(err)
		}
		levels, err := s.engine.Levels(ctx, courseID)
		if err != nil {
			return httpError(err)
		}

		poAchievement := map[int64]calc.Classification{}
		if result.ValidForAggregation {
			for poID, v := range result.PerPO {
				poAchievement[poID] = calc.ClassifyScore(v, levels)
			}
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"result":        result,
			"poAchievement": poAchievement,
		})
	}
}

//
// institution-wide (or one student's) program outcome averages
//
func (s *OtfOutcomesService) buildCrossCourseHandler() echo.HandlerFunc {

	return func(c echo.Context) error {
		ctx := c.Request().Context()

		cr := &CrossCourseRequest{}
		if err := c.Bind(cr); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		method, err := calc.ParseMethod(cr.Method)
		if err != nil {
			return httpError(err)
		}
		cohort, err := s.cohort(ctx, cr.GraduatingOnly)
		if err != nil {
			return httpError(err)
		}

		ids := cr.CourseIDs
		if len(ids) == 0 {
			if ids, err = s.engine.CourseIDs(ctx); err != nil {
				return httpError(err)
			}
		}
		results, err := s.engine.ComputeAll(ctx, ids, calc.Params{Method: method, Cohort: cohort})
		if err != nil {
			c.Logger().Errorf("cross-course calculation error: %v", err)
			return httpError(err)
		}

		var averages map[int64]decimal.NullDecimal
		if cr.StudentNumber != "" {
			averages = calc.StudentCrossCourseAverages(results, cr.Weights, cr.StudentNumber)
		} else {
			averages = calc.ComputeCrossCourseAverages(results, cr.Weights)
		}

		levels, err := s.engine.Levels(ctx, calc.GlobalScope)
		if err != nil {
			return httpError(err)
		}
		pos, err := s.engine.ProgramOutcomes(ctx)
		if err != nil {
			return httpError(err)
		}

		rows := []ProgramOutcomeAverage{}
		for _, po := range pos {
			avg, ok := averages[po.ID]
			if !ok {
				continue
			}
			row := ProgramOutcomeAverage{ProgramOutcome: po, Average: avg}
			if avg.Valid {
				a := calc.ClassifyScore(avg.Decimal, levels)
				row.Achievement = &a
			}
			rows = append(rows, row)
		}

		statuses := map[int64]calc.Status{}
		for _, r := range results {
			statuses[r.CourseID] = r.Status
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"programOutcomes": rows,
			"courseStatus":    statuses,
			"studentNumber":   cr.StudentNumber,
		})
	}
}

//
// similar course outcomes across courses
// similarity: percentage 0-100, default 90
// refresh: ignore any cached grouping
//
func (s *OtfOutcomesService) buildOutcomeGroupsHandler() echo.HandlerFunc {

	return func(c echo.Context) error {
		threshold := calc.DefaultSimilarity
		if v := c.QueryParam("similarity"); v != "" {
			pct, err := strconv.ParseFloat(v, 64)
			if err != nil || pct < 0 || pct > 100 {
				return echo.NewHTTPError(http.StatusBadRequest, "similarity must be a percentage between 0 and 100")
			}
			threshold = pct / 100
		}
		refresh, _ := strconv.ParseBool(c.QueryParam("refresh"))

		groups, err := s.engine.OutcomeGroups(c.Request().Context(), threshold, refresh)
		if err != nil {
			c.Logger().Errorf("outcome grouping error: %v", err)
			return httpError(err)
		}
		return c.JSON(http.StatusOK, groups)
	}
}

//
// course-weighted average of a group of course outcomes
//
func (s *OtfOutcomesService) buildGroupAverageHandler() echo.HandlerFunc {

	return func(c echo.Context) error {
		ctx := c.Request().Context()

		gr := &GroupAverageRequest{}
		if err := c.Bind(gr); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if len(gr.OutcomeIDs) == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "must supply outcomeIds")
		}

		all, err := s.engine.Outcomes(ctx)
		if err != nil {
			return httpError(err)
		}
		wanted := map[int64]bool{}
		for _, id := range gr.OutcomeIDs {
			wanted[id] = true
		}
		var outcomes []calc.CourseOutcome
		var courseIDs []int64
		seen := map[int64]bool{}
		for _, o := range all {
			if !wanted[o.ID] {
				continue
			}
			outcomes = append(outcomes, o)
			if !seen[o.CourseID] {
				seen[o.CourseID] = true
				courseIDs = append(courseIDs, o.CourseID)
			}
		}
		if len(outcomes) == 0 {
			return echo.NewHTTPError(http.StatusNotFound, "no matching course outcomes")
		}

		computed, err := s.engine.ComputeAll(ctx, courseIDs, calc.Params{})
		if err != nil {
			return httpError(err)
		}
		results := make(map[int64]*calc.CourseResult, len(computed))
		for _, r := range computed {
			results[r.CourseID] = r
		}

		entries, avg := calc.GroupAverage(outcomes, results)
		response := map[string]interface{}{
			"entries": entries,
			"average": avg,
		}
		if avg.Valid {
			levels, err := s.engine.Levels(ctx, calc.GlobalScope)
			if err != nil {
				return httpError(err)
			}
			response["achievement"] = calc.ClassifyScore(avg.Decimal, levels)
		}
		return c.JSON(http.StatusOK, response)
	}
}
