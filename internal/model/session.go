package model

import (
	"time"

	"github.com/google/uuid"
)

// Phase is one state of the session state machine. Phases advance strictly
// forward; explicit Back moves are allowed only before InProgress.
type Phase string

const (
	PhaseInstructions         Phase = "INSTRUCTIONS"
	PhaseSystemCheck          Phase = "SYSTEM_CHECK"
	PhaseIdVerification       Phase = "ID_VERIFICATION"
	PhaseRulesAcknowledgement Phase = "RULES_ACKNOWLEDGEMENT"
	PhaseInProgress           Phase = "IN_PROGRESS"
	PhaseSubmitted            Phase = "SUBMITTED"
	PhaseAbandoned            Phase = "ABANDONED"
)

// Terminal reports whether the phase permits no further transitions.
func (p Phase) Terminal() bool {
	return p == PhaseSubmitted || p == PhaseAbandoned
}

// SessionOutcome is the durable terminal classification of a session row.
// Abandonment is distinct from submission so staff tooling can tell "never
// finished" from "finished, pending declaration".
type SessionOutcome string

const (
	OutcomeInProgress SessionOutcome = "IN_PROGRESS"
	OutcomeSubmitted  SessionOutcome = "SUBMITTED"
	OutcomeAbandoned  SessionOutcome = "ABANDONED"
)

// SessionRecord is a candidate's assessment attempt as persisted.
type SessionRecord struct {
	ID          uuid.UUID      `json:"id"`
	TestID      uuid.UUID      `json:"test_id"`
	CandidateID uuid.UUID      `json:"candidate_id"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	Outcome     SessionOutcome `json:"outcome"`
}

// SessionStateView is the state document returned to the candidate client,
// covering page reloads: saved answers, remaining time and current phase.
type SessionStateView struct {
	SessionID        uuid.UUID         `json:"session_id"`
	TestID           uuid.UUID         `json:"test_id"`
	Phase            Phase             `json:"phase"`
	Answers          map[string]Answer `json:"answers"`
	QuestionOrder    []string          `json:"question_order,omitempty"`
	RemainingSeconds int               `json:"remaining_seconds"`
	Progress         int               `json:"progress"`
	TabSwitches      int               `json:"tab_switches"`
	StartedAt        *time.Time        `json:"started_at,omitempty"`
	SubmittedAt      *time.Time        `json:"submitted_at,omitempty"`
}

// ─── Request payloads ───────────────────────────────────────────────

// SystemCheckRequest reports the outcome of the candidate's environment
// checks. Camera denial is a recoverable warning, not a session failure.
type SystemCheckRequest struct {
	CameraAccess      *bool `json:"camera_access" binding:"required"`
	FullscreenActive  bool  `json:"fullscreen_active"`
	BrowserCompatible *bool `json:"browser_compatible" binding:"required"`
}

// IdentityRequest hands opaque identity artifacts to the IdVerification
// phase. The engine records presence only; content is never interpreted.
type IdentityRequest struct {
	IDImageRef      string `json:"id_image_ref" binding:"omitempty,max=512"`
	FaceImageRef    string `json:"face_image_ref" binding:"omitempty,max=512"`
	CandidateNumber string `json:"candidate_number" binding:"omitempty,max=64"`
}

// RulesRequest acknowledges the exam rules. A pointer keeps an explicit
// false distinct from an absent field, so acknowledgement can be retracted.
type RulesRequest struct {
	AcceptedRules *bool `json:"accepted_rules" binding:"required"`
}

// PhaseRequest drives an explicit phase move.
type PhaseRequest struct {
	Direction string `json:"direction" binding:"required,oneof=advance back"`
}

// AnswerRequest autosaves one answer. An empty value clears the answer.
type AnswerRequest struct {
	Value Answer `json:"value"`
}

// IntegrityRequest reports a proctoring signal from the client.
type IntegrityRequest struct {
	Kind IntegrityKind `json:"kind" binding:"required"`
}

// NavigateRequest moves the candidate's position within the paper.
type NavigateRequest struct {
	Section  int `json:"section" binding:"min=0"`
	Question int `json:"question" binding:"min=0"`
}
