// Package session implements the candidate-facing exam runtime as a pure
// state machine, decoupled from transport and storage. A Session is owned by
// exactly one candidate attempt and is mutated only through its methods; the
// HTTP/WebSocket layer is a thin dispatcher around it.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/oddiant-techlabs/assessment-engine/internal/model"
)

// phaseOrder is the required forward walk up to the exam phase. Submitted
// and Abandoned are terminal variants reached from InProgress (or, for
// Abandoned, from any non-terminal phase).
var phaseOrder = []model.Phase{
	model.PhaseInstructions,
	model.PhaseSystemCheck,
	model.PhaseIdVerification,
	model.PhaseRulesAcknowledgement,
	model.PhaseInProgress,
}

// Config carries the per-test switches and deployment policies the machine
// enforces.
type Config struct {
	DurationSeconds int  `json:"duration_seconds"`
	AutoSubmit      bool `json:"auto_submit"`
	// ShuffleQuestions applies a per-session Fisher–Yates permutation to each
	// section's questions immediately after load; the order is then fixed for
	// the lifetime of the session.
	ShuffleQuestions bool `json:"shuffle_questions"`
	// MonitorEnabled mirrors the test's preventTabSwitching setting. When
	// false, tab and fullscreen signals are not recorded.
	MonitorEnabled bool `json:"monitor_enabled"`
	// StrictCamera requires cameraAccess == true to leave SystemCheck.
	// Non-strict deployments accept a documented failure.
	StrictCamera bool `json:"strict_camera"`
	// StrictIdentity requires all three identity artifacts instead of any one.
	StrictIdentity bool `json:"strict_identity"`
}

// SystemChecks records the candidate's environment check outcomes. Fullscreen
// and browser compatibility are informational and never block progression.
type SystemChecks struct {
	CameraAttempted   bool `json:"camera_attempted"`
	CameraAccess      bool `json:"camera_access"`
	FullscreenActive  bool `json:"fullscreen_active"`
	BrowserCompatible bool `json:"browser_compatible"`
}

// Identity records the presence of opaque identity artifacts. Content is
// never interpreted here.
type Identity struct {
	IDImageRef      string `json:"id_image_ref,omitempty"`
	FaceImageRef    string `json:"face_image_ref,omitempty"`
	CandidateNumber string `json:"candidate_number,omitempty"`
}

func (id Identity) any() bool {
	return id.IDImageRef != "" || id.FaceImageRef != "" || id.CandidateNumber != ""
}

func (id Identity) all() bool {
	return id.IDImageRef != "" && id.FaceImageRef != "" && id.CandidateNumber != ""
}

// Position is the candidate's free-form location within the paper. It is
// never gated: candidates may move across sections and questions at will.
type Position struct {
	Section  int `json:"section"`
	Question int `json:"question"`
}

// Session is the exam runtime for one candidate attempt.
type Session struct {
	id          uuid.UUID
	testID      uuid.UUID
	candidateID uuid.UUID
	cfg         Config

	phase         model.Phase
	checks        SystemChecks
	identity      Identity
	acceptedRules bool

	answers       map[string]model.Answer
	knownQuestion map[string]struct{}
	totalCount    int
	order         []string
	position      Position

	integrityLog []model.IntegrityEvent
	tabSwitches  int

	remainingSeconds int
	startedAt        *time.Time
	submittedAt      *time.Time

	now  func() time.Time
	rand Rand
}

// Option customizes Session construction, mainly for deterministic tests.
type Option func(*Session)

// WithClock injects the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithRand injects the randomness source used for question shuffling.
func WithRand(r Rand) Option {
	return func(s *Session) { s.rand = r }
}

// New creates a session in the Instructions phase for the given test. The
// test definition is treated as immutable; the session keeps only the
// question identifiers it needs. Shuffling, when enabled, happens here once
// and the resulting order is fixed for the session's lifetime.
func New(id uuid.UUID, test *model.Test, candidateID uuid.UUID, cfg Config, opts ...Option) *Session {
	s := &Session{
		id:               id,
		testID:           test.ID,
		candidateID:      candidateID,
		cfg:              cfg,
		phase:            model.PhaseInstructions,
		answers:          make(map[string]model.Answer),
		knownQuestion:    make(map[string]struct{}),
		remainingSeconds: cfg.DurationSeconds,
		now:              time.Now,
		rand:             cryptoSeededRand(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, sec := range test.Sections {
		ids := make([]string, len(sec.Questions))
		for i, q := range sec.Questions {
			ids[i] = q.ID.String()
			s.knownQuestion[ids[i]] = struct{}{}
		}
		if cfg.ShuffleQuestions {
			shuffle(ids, s.rand)
		}
		s.order = append(s.order, ids...)
	}
	s.totalCount = len(s.order)
	return s
}

// ─── Accessors ──────────────────────────────────────────────────────

func (s *Session) ID() uuid.UUID          { return s.id }
func (s *Session) TestID() uuid.UUID      { return s.testID }
func (s *Session) CandidateID() uuid.UUID { return s.candidateID }
func (s *Session) Phase() model.Phase     { return s.phase }
func (s *Session) RemainingSeconds() int  { return s.remainingSeconds }
func (s *Session) TabSwitches() int       { return s.tabSwitches }
func (s *Session) StartedAt() *time.Time  { return s.startedAt }
func (s *Session) SubmittedAt() *time.Time { return s.submittedAt }
func (s *Session) AcceptedRules() bool    { return s.acceptedRules }
func (s *Session) Checks() SystemChecks   { return s.checks }
func (s *Session) Position() Position     { return s.position }

// QuestionOrder returns the session's navigation order. The slice is a copy;
// re-reading mid-session always yields the same order.
func (s *Session) QuestionOrder() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Answers returns a copy of the answer store keyed by question id.
func (s *Session) Answers() map[string]model.Answer {
	out := make(map[string]model.Answer, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// IntegrityLog returns a copy of the append-only proctoring log in
// wall-clock order of detection.
func (s *Session) IntegrityLog() []model.IntegrityEvent {
	out := make([]model.IntegrityEvent, len(s.integrityLog))
	copy(out, s.integrityLog)
	return out
}

// Progress returns answered questions over total questions as a percentage
// rounded to the nearest integer. Pure function of the answer store and the
// question count.
func (s *Session) Progress() int {
	if s.totalCount == 0 {
		return 0
	}
	answered := 0
	for _, a := range s.answers {
		if !a.IsEmpty() {
			answered++
		}
	}
	return (answered*100 + s.totalCount/2) / s.totalCount
}

// ─── Phase transitions ──────────────────────────────────────────────

// Advance moves the session one phase forward after validating the current
// phase's exit preconditions. Entering InProgress starts the countdown.
func (s *Session) Advance() error {
	if s.phase.Terminal() {
		return ErrTerminal
	}
	if s.phase == model.PhaseInProgress {
		// Leaving the exam happens through Submit or Abandon only.
		return ErrInvalidTransition
	}

	switch s.phase {
	case model.PhaseInstructions:
		// "Start Test" — no precondition.
	case model.PhaseSystemCheck:
		if !s.checks.CameraAttempted {
			return ErrCameraCheckNeeded
		}
		if s.cfg.StrictCamera && !s.checks.CameraAccess {
			return ErrCameraRequired
		}
	case model.PhaseIdVerification:
		if s.cfg.StrictIdentity {
			if !s.identity.all() {
				return ErrIdentityRequired
			}
		} else if !s.identity.any() {
			return ErrIdentityRequired
		}
	case model.PhaseRulesAcknowledgement:
		if !s.acceptedRules {
			return ErrRulesNotAccepted
		}
	}

	s.phase = phaseOrder[s.phaseIndex()+1]
	if s.phase == model.PhaseInProgress {
		started := s.now()
		s.startedAt = &started
		s.remainingSeconds = s.cfg.DurationSeconds
	}
	return nil
}

// Back moves one phase backward. Allowed strictly before InProgress; once
// the exam has started there is no way back.
func (s *Session) Back() error {
	idx := s.phaseIndex()
	if s.phase.Terminal() || s.phase == model.PhaseInProgress || idx <= 0 {
		return ErrBackNotAllowed
	}
	s.phase = phaseOrder[idx-1]
	return nil
}

// Submit terminates the session with the answers that exist at this instant,
// empty ones included. Once submitted the session accepts no further
// mutation and InProgress can never be re-entered.
func (s *Session) Submit() error {
	if s.phase == model.PhaseSubmitted {
		return ErrAlreadySubmitted
	}
	if s.phase != model.PhaseInProgress {
		return ErrNotInProgress
	}
	s.finish()
	return nil
}

// Abandon marks the session abandoned: the transport or candidate vanished
// before submission. Distinct from Submitted so staff can tell "never
// finished" from "finished, pending declaration". No-op error on terminal
// sessions.
func (s *Session) Abandon() error {
	if s.phase.Terminal() {
		return ErrTerminal
	}
	s.phase = model.PhaseAbandoned
	return nil
}

func (s *Session) finish() {
	s.phase = model.PhaseSubmitted
	at := s.now()
	s.submittedAt = &at
}

func (s *Session) phaseIndex() int {
	for i, p := range phaseOrder {
		if p == s.phase {
			return i
		}
	}
	return -1
}

// ─── Pre-exam inputs ────────────────────────────────────────────────

// RecordSystemCheck stores the environment check outcomes. Re-firing is
// harmless; the latest report wins. A reported incompatible browser is
// logged as a proctoring signal but never blocks the candidate.
func (s *Session) RecordSystemCheck(cameraAccess, fullscreen, browserCompatible bool) error {
	if s.phase != model.PhaseSystemCheck {
		return ErrInvalidTransition
	}
	s.checks = SystemChecks{
		CameraAttempted:   true,
		CameraAccess:      cameraAccess,
		FullscreenActive:  fullscreen,
		BrowserCompatible: browserCompatible,
	}
	if !browserCompatible {
		s.appendIntegrity(model.IntegrityBrowserIncompatible)
	}
	return nil
}

// SetIdentity records identity artifacts. Values overwrite earlier ones;
// empty fields leave prior artifacts untouched so candidates can supply
// artifacts across retries.
func (s *Session) SetIdentity(artifacts Identity) error {
	if s.phase != model.PhaseIdVerification {
		return ErrInvalidTransition
	}
	if artifacts.IDImageRef != "" {
		s.identity.IDImageRef = artifacts.IDImageRef
	}
	if artifacts.FaceImageRef != "" {
		s.identity.FaceImageRef = artifacts.FaceImageRef
	}
	if artifacts.CandidateNumber != "" {
		s.identity.CandidateNumber = artifacts.CandidateNumber
	}
	return nil
}

// AcceptRules acknowledges (or retracts acknowledgement of) the exam rules.
func (s *Session) AcceptRules(accepted bool) error {
	if s.phase != model.PhaseRulesAcknowledgement {
		return ErrInvalidTransition
	}
	s.acceptedRules = accepted
	return nil
}

// ─── Exam phase ─────────────────────────────────────────────────────

// SetAnswer overwrites the candidate's answer for one question.
// Last-write-wins per question id; correctness is never validated here.
// Accepted only while InProgress — by permissive policy this includes a
// timer that has clamped at zero without auto-submit.
func (s *Session) SetAnswer(questionID string, value model.Answer) error {
	if s.phase != model.PhaseInProgress {
		if s.phase.Terminal() {
			return ErrTerminal
		}
		return ErrNotInProgress
	}
	if _, ok := s.knownQuestion[questionID]; !ok {
		return ErrUnknownQuestion
	}
	s.answers[questionID] = value
	return nil
}

// Navigate updates the candidate's free-form position within the paper.
func (s *Session) Navigate(section, question int) error {
	if s.phase != model.PhaseInProgress {
		return ErrNotInProgress
	}
	s.position = Position{Section: section, Question: question}
	return nil
}

// RecordIntegrity appends a proctoring signal. The monitor is advisory only:
// it never mutates answers and never forces a phase transition. Tab and
// fullscreen signals are dropped unless monitoring is enabled for the test;
// camera loss is always recorded. Safe to re-fire — every firing is one log
// entry.
func (s *Session) RecordIntegrity(kind model.IntegrityKind) error {
	if !model.ValidIntegrityKind(kind) {
		return ErrUnknownIntegrity
	}
	if s.phase != model.PhaseInProgress {
		return ErrNotInProgress
	}
	switch kind {
	case model.IntegrityTabBlur, model.IntegrityFullscreenExit:
		if !s.cfg.MonitorEnabled {
			return nil
		}
	}
	s.appendIntegrity(kind)
	if kind == model.IntegrityTabBlur {
		s.tabSwitches++
	}
	return nil
}

func (s *Session) appendIntegrity(kind model.IntegrityKind) {
	s.integrityLog = append(s.integrityLog, model.IntegrityEvent{
		At:   s.now(),
		Kind: kind,
	})
}

// ─── Timer ──────────────────────────────────────────────────────────

// Tick advances the countdown by one elapsed second. The timer only runs
// while InProgress; in any other phase the call is a no-op. On reaching zero
// with autoSubmit enabled the session is forced into Submitted carrying
// whatever answers exist; otherwise the timer clamps at zero and manual
// submission remains possible.
func (s *Session) Tick() {
	s.Elapse(1)
}

// Elapse applies n whole seconds of wall-clock time to the countdown. Used
// by hosts that derive elapsed time from a start timestamp rather than
// ticking in-process.
func (s *Session) Elapse(n int) {
	if s.phase != model.PhaseInProgress || n <= 0 {
		return
	}
	s.remainingSeconds -= n
	if s.remainingSeconds <= 0 {
		s.remainingSeconds = 0
		if s.cfg.AutoSubmit {
			s.finish()
		}
	}
}

// Expired reports whether the countdown has reached zero.
func (s *Session) Expired() bool {
	return s.remainingSeconds == 0 && s.startedAt != nil
}
