package calc

import (
	"sort"

	"github.com/shopspring/decimal"
)

type weightedQuestion struct {
	Question
	weight decimal.Decimal
}

type weightedOutcome struct {
	outcomeID int64
	weight    decimal.Decimal
}

//
// courseIndex holds the lookup tables derived from a Snapshot
// before any student is scored.
//
type courseIndex struct {
	snap *Snapshot

	exams map[int64]Exam
	// regular (base) exam ids, ascending
	regular   []int64
	mandatory []int64
	// base exam id -> its makeup
	makeupOf map[int64]Exam
	// normalized weight per base exam
	weights map[int64]decimal.Decimal
	// max score total per exam
	possible map[int64]decimal.Decimal

	// course outcome id -> exam id -> linked questions with Q-CO weight
	coQuestions map[int64]map[int64][]weightedQuestion
	// program outcome id -> linked course outcomes with CO-PO weight
	poOutcomes map[int64][]weightedOutcome
	// program outcomes fed by this course, ascending
	contributing []int64
}

func newCourseIndex(snap *Snapshot) *courseIndex {
	idx := &courseIndex{
		snap:        snap,
		exams:       map[int64]Exam{},
		makeupOf:    map[int64]Exam{},
		possible:    map[int64]decimal.Decimal{},
		coQuestions: map[int64]map[int64][]weightedQuestion{},
		poOutcomes:  map[int64][]weightedOutcome{},
	}

	for _, exam := range snap.Exams {
		idx.exams[exam.ID] = exam
		if !exam.IsMakeup {
			idx.regular = append(idx.regular, exam.ID)
			if exam.IsMandatory {
				idx.mandatory = append(idx.mandatory, exam.ID)
			}
		}
		total := decimal.Zero
		for _, q := range snap.Questions[exam.ID] {
			total = total.Add(q.MaxScore)
		}
		idx.possible[exam.ID] = total
	}

	// a makeup only counts when its base exam belongs to this course;
	// with several makeups for one base the lowest id wins
	for _, exam := range snap.Exams {
		if !exam.IsMakeup || exam.MakeupFor == nil {
			continue
		}
		base, ok := idx.exams[*exam.MakeupFor]
		if !ok || base.IsMakeup {
			logger.Debugf("course %d: makeup exam %d has no base exam in course", snap.Course.ID, exam.ID)
			continue
		}
		if _, taken := idx.makeupOf[base.ID]; !taken {
			idx.makeupOf[base.ID] = exam
		}
	}

	idx.weights = NormalizeWeights(regularExamWeights(snap))

	for _, exam := range snap.Exams {
		for _, q := range snap.Questions[exam.ID] {
			for _, link := range snap.QuestionLinks[q.ID] {
				byExam, ok := idx.coQuestions[link.TargetID]
				if !ok {
					byExam = map[int64][]weightedQuestion{}
					idx.coQuestions[link.TargetID] = byExam
				}
				byExam[exam.ID] = append(byExam[exam.ID], weightedQuestion{Question: q, weight: linkWeight(link)})
			}
		}
	}

	for _, co := range snap.Outcomes {
		for _, link := range snap.OutcomeLinks[co.ID] {
			if _, seen := idx.poOutcomes[link.TargetID]; !seen {
				idx.contributing = append(idx.contributing, link.TargetID)
			}
			idx.poOutcomes[link.TargetID] = append(idx.poOutcomes[link.TargetID],
				weightedOutcome{outcomeID: co.ID, weight: linkWeight(link)})
		}
	}
	sort.Slice(idx.contributing, func(i, j int) bool { return idx.contributing[i] < idx.contributing[j] })

	return idx
}

func linkWeight(link OutcomeLink) decimal.Decimal {
	if link.Weight.IsNegative() {
		return decimal.Zero
	}
	return link.Weight
}

func (idx *courseIndex) hasQuestions() bool {
	for _, exam := range idx.snap.Exams {
		if len(idx.snap.Questions[exam.ID]) > 0 {
			return true
		}
	}
	return false
}
