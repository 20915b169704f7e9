package calc

//
// AttendanceState is where one student stands on one mandatory
// base exam.
//
type AttendanceState int

const (
	// AttendedRegular: the student sat the exam (or has no record).
	AttendedRegular AttendanceState = iota
	// AttendedMakeupOnly: missed the exam, sat its makeup.
	AttendedMakeupOnly
	// AbsentBoth: missed the exam and has no attended makeup.
	AbsentBoth
)

func (s AttendanceState) String() string {
	switch s {
	case AttendedRegular:
		return "attended_regular"
	case AttendedMakeupOnly:
		return "attended_makeup_only"
	case AbsentBoth:
		return "absent_both"
	}
	return "unknown"
}

// Eligible reports whether the state keeps the student in the course calculation.
func (s AttendanceState) Eligible() bool {
	return s != AbsentBoth
}

// mandatoryState evaluates the state machine for one mandatory base exam.
func (idx *courseIndex) mandatoryState(studentID, examID int64) AttendanceState {
	if idx.snap.Attended(studentID, examID) {
		return AttendedRegular
	}
	makeup, ok := idx.makeupOf[examID]
	if ok && idx.snap.Attended(studentID, makeup.ID) {
		return AttendedMakeupOnly
	}
	return AbsentBoth
}

// ExclusionReason says why a student is left out of a course calculation.
type ExclusionReason string

const (
	ExcludedManually         ExclusionReason = "manual"
	ExcludedMissingMandatory ExclusionReason = "missing_mandatory_exam"
)

// ExcludedStudent is reported, never silently dropped.
type ExcludedStudent struct {
	StudentID int64           `json:"studentId"`
	Number    string          `json:"number"`
	Name      string          `json:"name"`
	Reason    ExclusionReason `json:"reason"`
	// ExamID is the first mandatory exam missed, for ExcludedMissingMandatory.
	ExamID int64 `json:"examId,omitempty"`
}

//
// eligibility runs once per student before any scoring.
// A manual exclusion short-circuits the attendance check.
//
func (idx *courseIndex) eligibility(student Student) (ExcludedStudent, bool) {
	excluded := ExcludedStudent{StudentID: student.ID, Number: student.Number, Name: student.Name()}
	if student.Excluded {
		excluded.Reason = ExcludedManually
		return excluded, false
	}
	for _, examID := range idx.mandatory {
		if !idx.mandatoryState(student.ID, examID).Eligible() {
			excluded.Reason = ExcludedMissingMandatory
			excluded.ExamID = examID
			return excluded, false
		}
	}
	return ExcludedStudent{}, true
}

//
// Resolution records, for one student, which exam stands for each
// base exam. It is computed once and shared by the weighted score,
// every course outcome and every program outcome so the base exam
// and its makeup are never mixed for the same student.
//
type Resolution struct {
	authoritative map[int64]int64
}

// Exam returns the exam whose scores count for baseID.
func (r Resolution) Exam(baseID int64) int64 {
	if id, ok := r.authoritative[baseID]; ok {
		return id
	}
	return baseID
}

// UsesMakeup reports whether the makeup replaced baseID.
func (r Resolution) UsesMakeup(baseID int64) bool {
	return r.Exam(baseID) != baseID
}

//
// resolve picks, per base exam, the makeup when one exists and the
// student attended it (no record counts as attended), else the base.
// A chosen makeup overrides the base even if it scores zero.
//
func (idx *courseIndex) resolve(studentID int64) Resolution {
	r := Resolution{authoritative: make(map[int64]int64, len(idx.regular))}
	for _, baseID := range idx.regular {
		r.authoritative[baseID] = baseID
		if makeup, ok := idx.makeupOf[baseID]; ok && idx.snap.Attended(studentID, makeup.ID) {
			r.authoritative[baseID] = makeup.ID
		}
	}
	return r
}
