package model

import (
	"time"

	"github.com/google/uuid"
)

// Background job payloads pushed onto Redis lists by the request path and
// drained by the persistence workers. Each is a self-contained JSON document
// so a worker restart loses nothing but in-flight items.

// AnswerJob persists one autosaved answer.
type AnswerJob struct {
	SessionID   uuid.UUID `json:"session_id"`
	TestID      uuid.UUID `json:"test_id"`
	CandidateID uuid.UUID `json:"candidate_id"`
	QuestionID  string    `json:"question_id"`
	Value       Answer    `json:"value"`
	SavedAt     time.Time `json:"saved_at"`
}

// IntegrityJob persists one proctoring event.
type IntegrityJob struct {
	SessionID   uuid.UUID     `json:"session_id"`
	TestID      uuid.UUID     `json:"test_id"`
	CandidateID uuid.UUID     `json:"candidate_id"`
	Kind        IntegrityKind `json:"kind"`
	At          time.Time     `json:"at"`
}

// ResultJob persists a computed result.
type ResultJob struct {
	Result Result `json:"result"`
}

// NotificationJob queues a candidate notification after declaration.
type NotificationJob struct {
	CandidateID uuid.UUID `json:"candidate_id"`
	TestID      uuid.UUID `json:"test_id"`
	ResultID    uuid.UUID `json:"result_id"`
	Kind        string    `json:"kind"`
	QueuedAt    time.Time `json:"queued_at"`
}

// NotificationKindResultDeclared tells the candidate their result is visible.
const NotificationKindResultDeclared = "RESULT_DECLARED"

// MonitorEvent is the live proctoring fan-out published on the test's
// monitor channel for staff dashboards.
type MonitorEvent struct {
	TestID      uuid.UUID     `json:"test_id"`
	CandidateID uuid.UUID     `json:"candidate_id"`
	SessionID   uuid.UUID     `json:"session_id"`
	Kind        IntegrityKind `json:"kind"`
	TabSwitches int           `json:"tab_switches"`
	At          time.Time     `json:"at"`
}
