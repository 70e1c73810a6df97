package model

import (
	"time"

	"github.com/google/uuid"
)

// ResultStatus is the pass/fail classification of a computed result.
type ResultStatus string

const (
	ResultStatusPassed ResultStatus = "PASSED"
	ResultStatusFailed ResultStatus = "FAILED"
)

// Result is a computed assessment outcome. ResultsDeclared is the sole gate
// on candidate-visible score/status: it is set exactly once by an explicit
// staff action and never reverts to false.
type Result struct {
	ID          uuid.UUID    `json:"id"`
	SessionID   uuid.UUID    `json:"session_id"`
	TestID      uuid.UUID    `json:"test_id"`
	CandidateID uuid.UUID    `json:"candidate_id"`
	Score       int          `json:"score"`
	Status      ResultStatus `json:"status"`
	// NeedsReview marks results containing written or coding answers that
	// were not auto-scored and await external grading.
	NeedsReview     bool       `json:"needs_review"`
	CompletionDate  time.Time  `json:"completion_date"`
	ResultsDeclared bool       `json:"results_declared"`
	DeclaredAt      *time.Time `json:"declared_at,omitempty"`
}

// CandidateResultView is what a candidate-facing reader may see. Until the
// result is declared, score and status are withheld behind Pending.
type CandidateResultView struct {
	TestID         uuid.UUID     `json:"test_id"`
	Pending        bool          `json:"pending"`
	Score          *int          `json:"score,omitempty"`
	Status         *ResultStatus `json:"status,omitempty"`
	CompletionDate time.Time     `json:"completion_date"`
}

// ViewFor projects a result into its candidate-facing form, applying the
// declaration gate.
func ViewFor(r *Result) CandidateResultView {
	view := CandidateResultView{
		TestID:         r.TestID,
		CompletionDate: r.CompletionDate,
		Pending:        !r.ResultsDeclared,
	}
	if r.ResultsDeclared {
		score := r.Score
		status := r.Status
		view.Score = &score
		view.Status = &status
	}
	return view
}
