package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/oddiant-techlabs/assessment-engine/internal/model"
)

// Snapshot is the JSON-serializable form of a Session, used to park live
// sessions in Redis between requests. It captures everything needed to
// resume: phase, answers, integrity log, countdown and the fixed question
// order.
type Snapshot struct {
	ID               uuid.UUID              `json:"id"`
	TestID           uuid.UUID              `json:"test_id"`
	CandidateID      uuid.UUID              `json:"candidate_id"`
	Config           Config                 `json:"config"`
	Phase            model.Phase            `json:"phase"`
	Checks           SystemChecks           `json:"checks"`
	Identity         Identity               `json:"identity"`
	AcceptedRules    bool                   `json:"accepted_rules"`
	Answers          map[string]model.Answer `json:"answers"`
	QuestionOrder    []string               `json:"question_order"`
	Position         Position               `json:"position"`
	IntegrityLog     []model.IntegrityEvent `json:"integrity_log"`
	TabSwitches      int                    `json:"tab_switches"`
	RemainingSeconds int                    `json:"remaining_seconds"`
	StartedAt        *time.Time             `json:"started_at,omitempty"`
	SubmittedAt      *time.Time             `json:"submitted_at,omitempty"`
}

// Snapshot exports the session's current state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:               s.id,
		TestID:           s.testID,
		CandidateID:      s.candidateID,
		Config:           s.cfg,
		Phase:            s.phase,
		Checks:           s.checks,
		Identity:         s.identity,
		AcceptedRules:    s.acceptedRules,
		Answers:          s.Answers(),
		QuestionOrder:    s.QuestionOrder(),
		Position:         s.position,
		IntegrityLog:     s.IntegrityLog(),
		TabSwitches:      s.tabSwitches,
		RemainingSeconds: s.remainingSeconds,
		StartedAt:        s.startedAt,
		SubmittedAt:      s.submittedAt,
	}
}

// Restore rebuilds a session from a snapshot. The known-question set is
// derived from the stored order, which always covers the full paper.
func Restore(snap Snapshot, opts ...Option) *Session {
	s := &Session{
		id:               snap.ID,
		testID:           snap.TestID,
		candidateID:      snap.CandidateID,
		cfg:              snap.Config,
		phase:            snap.Phase,
		checks:           snap.Checks,
		identity:         snap.Identity,
		acceptedRules:    snap.AcceptedRules,
		answers:          make(map[string]model.Answer, len(snap.Answers)),
		knownQuestion:    make(map[string]struct{}, len(snap.QuestionOrder)),
		totalCount:       len(snap.QuestionOrder),
		order:            append([]string(nil), snap.QuestionOrder...),
		position:         snap.Position,
		integrityLog:     append([]model.IntegrityEvent(nil), snap.IntegrityLog...),
		tabSwitches:      snap.TabSwitches,
		remainingSeconds: snap.RemainingSeconds,
		startedAt:        snap.StartedAt,
		submittedAt:      snap.SubmittedAt,
		now:              time.Now,
		rand:             cryptoSeededRand(),
	}
	for k, v := range snap.Answers {
		s.answers[k] = v
	}
	for _, qid := range snap.QuestionOrder {
		s.knownQuestion[qid] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StateView projects the session into the candidate-facing state document.
func (s *Session) StateView() model.SessionStateView {
	return model.SessionStateView{
		SessionID:        s.id,
		TestID:           s.testID,
		Phase:            s.phase,
		Answers:          s.Answers(),
		QuestionOrder:    s.QuestionOrder(),
		RemainingSeconds: s.remainingSeconds,
		Progress:         s.Progress(),
		TabSwitches:      s.tabSwitches,
		StartedAt:        s.startedAt,
		SubmittedAt:      s.submittedAt,
	}
}
