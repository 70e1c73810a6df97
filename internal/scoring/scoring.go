// Package scoring turns a submitted answer set into a Result. Scoring is a
// pure function: it never touches storage and never reveals anything to the
// candidate — visibility is the declaration gate's job.
package scoring

import (
	"time"

	"github.com/google/uuid"

	"github.com/oddiant-techlabs/assessment-engine/internal/model"
)

// Compute grades a submission against the test's answer key and produces an
// undeclared Result.
//
// Multiple-choice questions award their full point value when the submitted
// answer equals the correct answer (set equality for multi-select). Written
// and coding questions are never auto-scored: they contribute zero awarded
// points and flag the result NeedsReview for external grading. Scoring of
// ungraded types must not fail — an unanswered or ungradable question simply
// earns nothing.
func Compute(test *model.Test, sessionID, candidateID uuid.UUID, answers map[string]model.Answer, completedAt time.Time) *model.Result {
	awarded := 0
	available := 0
	needsReview := false

	for _, q := range test.AllQuestions() {
		available += q.Points
		if !q.AutoScorable() {
			needsReview = true
			continue
		}
		ans, ok := answers[q.ID.String()]
		if !ok || ans.IsEmpty() {
			continue
		}
		if ans.EqualSet(q.CorrectAnswer) {
			awarded += q.Points
		}
	}

	score := 0
	if available > 0 {
		score = (awarded*100 + available/2) / available
	}

	status := model.ResultStatusFailed
	if score >= test.PassingScore {
		status = model.ResultStatusPassed
	}

	return &model.Result{
		ID:              uuid.New(),
		SessionID:       sessionID,
		TestID:          test.ID,
		CandidateID:     candidateID,
		Score:           score,
		Status:          status,
		NeedsReview:     needsReview,
		CompletionDate:  completedAt,
		ResultsDeclared: false,
	}
}
