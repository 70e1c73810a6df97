package session

import (
	"encoding/json"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/oddiant-techlabs/assessment-engine/internal/model"
)

func buildTest(t *testing.T, questionsPerSection ...int) *model.Test {
	t.Helper()
	test := &model.Test{
		ID:              uuid.New(),
		Name:            "Backend Screening",
		DurationMinutes: 1,
		PassingScore:    70,
		Status:          model.TestStatusPublished,
	}
	for i, n := range questionsPerSection {
		sec := model.Section{ID: uuid.New(), Title: "Section", QuestionType: model.QuestionTypeMultipleChoice}
		for j := 0; j < n; j++ {
			sec.Questions = append(sec.Questions, model.Question{
				ID:            uuid.New(),
				Text:          "Question",
				Type:          model.QuestionTypeMultipleChoice,
				Options:       []string{"A", "B", "C", "D"},
				CorrectAnswer: []string{"B"},
				Points:        10,
			})
		}
		_ = i
		test.Sections = append(test.Sections, sec)
	}
	return test
}

func fixedClock(start time.Time) func() time.Time {
	return func() time.Time { return start }
}

// advanceToExam walks a fresh session through every verification phase.
func advanceToExam(t *testing.T, s *Session) {
	t.Helper()
	if err := s.Advance(); err != nil { // Instructions -> SystemCheck
		t.Fatalf("start test: %v", err)
	}
	if err := s.RecordSystemCheck(true, true, true); err != nil {
		t.Fatalf("system check: %v", err)
	}
	if err := s.Advance(); err != nil { // SystemCheck -> IdVerification
		t.Fatalf("leave system check: %v", err)
	}
	if err := s.SetIdentity(Identity{CandidateNumber: "CAND-042"}); err != nil {
		t.Fatalf("set identity: %v", err)
	}
	if err := s.Advance(); err != nil { // IdVerification -> RulesAcknowledgement
		t.Fatalf("leave id verification: %v", err)
	}
	if err := s.AcceptRules(true); err != nil {
		t.Fatalf("accept rules: %v", err)
	}
	if err := s.Advance(); err != nil { // RulesAcknowledgement -> InProgress
		t.Fatalf("enter exam: %v", err)
	}
	if s.Phase() != model.PhaseInProgress {
		t.Fatalf("expected InProgress, got %s", s.Phase())
	}
}

func TestPhaseOrderEnforced(t *testing.T) {
	test := buildTest(t, 2)
	s := New(uuid.New(), test, uuid.New(), Config{DurationSeconds: 60})

	if s.Phase() != model.PhaseInstructions {
		t.Fatalf("new session should start at Instructions, got %s", s.Phase())
	}

	// Exam-phase operations are rejected before InProgress.
	qid := test.Sections[0].Questions[0].ID.String()
	if err := s.SetAnswer(qid, model.Answer{"A"}); err != ErrNotInProgress {
		t.Fatalf("expected ErrNotInProgress, got %v", err)
	}

	if err := s.Advance(); err != nil {
		t.Fatalf("start test: %v", err)
	}

	// SystemCheck cannot be left before a camera attempt was recorded.
	if err := s.Advance(); err != ErrCameraCheckNeeded {
		t.Fatalf("expected ErrCameraCheckNeeded, got %v", err)
	}
	if err := s.RecordSystemCheck(false, false, true); err != nil {
		t.Fatalf("system check: %v", err)
	}
	// Documented camera failure is acceptable in non-strict mode.
	if err := s.Advance(); err != nil {
		t.Fatalf("leave system check after documented failure: %v", err)
	}

	// IdVerification needs at least one artifact.
	if err := s.Advance(); err != ErrIdentityRequired {
		t.Fatalf("expected ErrIdentityRequired, got %v", err)
	}
	if err := s.SetIdentity(Identity{FaceImageRef: "blob://face-1"}); err != nil {
		t.Fatalf("set identity: %v", err)
	}
	if err := s.Advance(); err != nil {
		t.Fatalf("leave id verification: %v", err)
	}

	// Rules must be accepted.
	if err := s.Advance(); err != ErrRulesNotAccepted {
		t.Fatalf("expected ErrRulesNotAccepted, got %v", err)
	}
	if err := s.AcceptRules(true); err != nil {
		t.Fatalf("accept rules: %v", err)
	}
	if err := s.Advance(); err != nil {
		t.Fatalf("enter exam: %v", err)
	}

	// No forward Advance out of the exam; only Submit or Abandon.
	if err := s.Advance(); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := s.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := s.Advance(); err != ErrTerminal {
		t.Fatalf("expected ErrTerminal after submit, got %v", err)
	}
}

func TestStrictCameraPolicy(t *testing.T) {
	s := New(uuid.New(), buildTest(t, 1), uuid.New(), Config{DurationSeconds: 60, StrictCamera: true})
	if err := s.Advance(); err != nil {
		t.Fatalf("start test: %v", err)
	}
	if err := s.RecordSystemCheck(false, true, true); err != nil {
		t.Fatalf("system check: %v", err)
	}
	if err := s.Advance(); err != ErrCameraRequired {
		t.Fatalf("strict mode must require camera access, got %v", err)
	}
	// Retry affordance: a later successful attempt unblocks the candidate.
	if err := s.RecordSystemCheck(true, true, true); err != nil {
		t.Fatalf("retry system check: %v", err)
	}
	if err := s.Advance(); err != nil {
		t.Fatalf("advance after camera granted: %v", err)
	}
}

func TestStrictIdentityPolicy(t *testing.T) {
	s := New(uuid.New(), buildTest(t, 1), uuid.New(), Config{DurationSeconds: 60, StrictIdentity: true})
	if err := s.Advance(); err != nil {
		t.Fatalf("start test: %v", err)
	}
	if err := s.RecordSystemCheck(true, true, true); err != nil {
		t.Fatalf("system check: %v", err)
	}
	if err := s.Advance(); err != nil {
		t.Fatalf("leave system check: %v", err)
	}

	if err := s.SetIdentity(Identity{CandidateNumber: "CAND-7"}); err != nil {
		t.Fatalf("set identity: %v", err)
	}
	if err := s.Advance(); err != ErrIdentityRequired {
		t.Fatalf("strict mode must require all artifacts, got %v", err)
	}
	// Artifacts accumulate across retries.
	if err := s.SetIdentity(Identity{IDImageRef: "blob://id", FaceImageRef: "blob://face"}); err != nil {
		t.Fatalf("add artifacts: %v", err)
	}
	if err := s.Advance(); err != nil {
		t.Fatalf("advance with all artifacts: %v", err)
	}
}

func TestBackAllowedOnlyBeforeExam(t *testing.T) {
	s := New(uuid.New(), buildTest(t, 1), uuid.New(), Config{DurationSeconds: 60})

	if err := s.Back(); err != ErrBackNotAllowed {
		t.Fatalf("back from Instructions must fail, got %v", err)
	}
	if err := s.Advance(); err != nil {
		t.Fatalf("start test: %v", err)
	}
	if err := s.Back(); err != nil {
		t.Fatalf("back from SystemCheck: %v", err)
	}
	if s.Phase() != model.PhaseInstructions {
		t.Fatalf("expected Instructions after back, got %s", s.Phase())
	}

	advanceToExam(t, s)
	if err := s.Back(); err != ErrBackNotAllowed {
		t.Fatalf("back from InProgress must fail, got %v", err)
	}
}

func TestTimerExhaustionAutoSubmit(t *testing.T) {
	s := New(uuid.New(), buildTest(t, 3), uuid.New(), Config{DurationSeconds: 60, AutoSubmit: true})
	advanceToExam(t, s)

	qid := s.QuestionOrder()[0]
	if err := s.SetAnswer(qid, model.Answer{"B"}); err != nil {
		t.Fatalf("set answer: %v", err)
	}

	for i := 0; i < 60; i++ {
		s.Tick()
	}

	if s.Phase() != model.PhaseSubmitted {
		t.Fatalf("expected Submitted after 60 ticks, got %s", s.Phase())
	}
	if s.RemainingSeconds() != 0 {
		t.Fatalf("expected 0 seconds remaining, got %d", s.RemainingSeconds())
	}
	// Forced submission carries whatever answers exist at that instant.
	if got := s.Answers()[qid]; !got.EqualSet([]string{"B"}) {
		t.Fatalf("auto-submit must carry answers, got %v", got)
	}
	// Further ticks are no-ops in a terminal phase.
	s.Tick()
	if s.RemainingSeconds() != 0 {
		t.Fatalf("tick after terminal must not move timer")
	}
}

func TestTimerClampsWithoutAutoSubmit(t *testing.T) {
	s := New(uuid.New(), buildTest(t, 2), uuid.New(), Config{DurationSeconds: 5, AutoSubmit: false})
	advanceToExam(t, s)

	s.Elapse(10)
	if s.Phase() != model.PhaseInProgress {
		t.Fatalf("without autoSubmit the phase must stay InProgress, got %s", s.Phase())
	}
	if s.RemainingSeconds() != 0 {
		t.Fatalf("timer must clamp at zero, got %d", s.RemainingSeconds())
	}
	if !s.Expired() {
		t.Fatalf("timer should report expired")
	}

	// Permissive policy: mutation stays accepted until explicit submission.
	qid := s.QuestionOrder()[0]
	if err := s.SetAnswer(qid, model.Answer{"A"}); err != nil {
		t.Fatalf("answers must stay mutable after clamp: %v", err)
	}
	if err := s.Submit(); err != nil {
		t.Fatalf("manual submit after clamp: %v", err)
	}
}

func TestTimerSuspendedOutsideExam(t *testing.T) {
	s := New(uuid.New(), buildTest(t, 1), uuid.New(), Config{DurationSeconds: 60})
	s.Tick()
	s.Elapse(30)
	if s.RemainingSeconds() != 60 {
		t.Fatalf("timer must not run before InProgress, got %d", s.RemainingSeconds())
	}
}

func TestAnswerStoreSemantics(t *testing.T) {
	test := buildTest(t, 2)
	s := New(uuid.New(), test, uuid.New(), Config{DurationSeconds: 60})
	advanceToExam(t, s)

	qid := test.Sections[0].Questions[0].ID.String()

	// Idempotence: writing the same value twice equals writing it once.
	if err := s.SetAnswer(qid, model.Answer{"C"}); err != nil {
		t.Fatalf("set answer: %v", err)
	}
	first := s.Answers()
	if err := s.SetAnswer(qid, model.Answer{"C"}); err != nil {
		t.Fatalf("repeat set answer: %v", err)
	}
	if !reflect.DeepEqual(first, s.Answers()) {
		t.Fatalf("repeated identical write changed the store")
	}

	// Last write wins.
	if err := s.SetAnswer(qid, model.Answer{"A", "D"}); err != nil {
		t.Fatalf("overwrite answer: %v", err)
	}
	if got := s.Answers()[qid]; !got.EqualSet([]string{"D", "A"}) {
		t.Fatalf("expected multi-select overwrite, got %v", got)
	}

	// Unknown question ids are typed precondition violations.
	if err := s.SetAnswer(uuid.New().String(), model.Answer{"A"}); err != ErrUnknownQuestion {
		t.Fatalf("expected ErrUnknownQuestion, got %v", err)
	}

	// Terminal sessions accept no further mutation.
	if err := s.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := s.SetAnswer(qid, model.Answer{"B"}); err != ErrTerminal {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if err := s.Submit(); err != ErrAlreadySubmitted {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestProgressRounding(t *testing.T) {
	test := buildTest(t, 3)
	s := New(uuid.New(), test, uuid.New(), Config{DurationSeconds: 60})
	advanceToExam(t, s)

	if s.Progress() != 0 {
		t.Fatalf("expected 0%% at start, got %d", s.Progress())
	}

	order := s.QuestionOrder()
	if err := s.SetAnswer(order[0], model.Answer{"A"}); err != nil {
		t.Fatalf("set answer: %v", err)
	}
	if s.Progress() != 33 {
		t.Fatalf("expected 33%% for 1/3, got %d", s.Progress())
	}
	if err := s.SetAnswer(order[1], model.Answer{"B"}); err != nil {
		t.Fatalf("set answer: %v", err)
	}
	if s.Progress() != 67 {
		t.Fatalf("expected 67%% for 2/3, got %d", s.Progress())
	}

	// Empty answers do not count as completion.
	if err := s.SetAnswer(order[2], model.Answer{""}); err != nil {
		t.Fatalf("set empty answer: %v", err)
	}
	if s.Progress() != 67 {
		t.Fatalf("empty answer must not count, got %d", s.Progress())
	}
}

func TestShuffleStability(t *testing.T) {
	test := buildTest(t, 10)
	cfg := Config{DurationSeconds: 60, ShuffleQuestions: true}

	a := New(uuid.New(), test, uuid.New(), cfg, WithRand(rand.New(rand.NewSource(1))))
	b := New(uuid.New(), test, uuid.New(), cfg, WithRand(rand.New(rand.NewSource(2))))

	// Re-reading the order mid-session yields the same order.
	if !reflect.DeepEqual(a.QuestionOrder(), a.QuestionOrder()) {
		t.Fatalf("question order is not stable within a session")
	}

	// Independently created sessions may differ.
	if reflect.DeepEqual(a.QuestionOrder(), b.QuestionOrder()) {
		t.Fatalf("distinct seeds produced identical orders")
	}

	// The order survives snapshot round-trips unchanged.
	restored := Restore(a.Snapshot())
	if !reflect.DeepEqual(a.QuestionOrder(), restored.QuestionOrder()) {
		t.Fatalf("restore changed the question order")
	}

	// Shuffling permutes, never drops or invents questions.
	seen := make(map[string]bool)
	for _, qid := range a.QuestionOrder() {
		seen[qid] = true
	}
	for _, q := range test.AllQuestions() {
		if !seen[q.ID.String()] {
			t.Fatalf("question %s missing from shuffled order", q.ID)
		}
	}
}

func TestShuffleDisabledKeepsAuthoredOrder(t *testing.T) {
	test := buildTest(t, 4)
	s := New(uuid.New(), test, uuid.New(), Config{DurationSeconds: 60})
	want := make([]string, 0, 4)
	for _, q := range test.AllQuestions() {
		want = append(want, q.ID.String())
	}
	if !reflect.DeepEqual(s.QuestionOrder(), want) {
		t.Fatalf("expected authored order %v, got %v", want, s.QuestionOrder())
	}
}

func TestIntegrityLogAppendOnly(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s := New(uuid.New(), buildTest(t, 1), uuid.New(),
		Config{DurationSeconds: 60, MonitorEnabled: true},
		WithClock(fixedClock(start)))
	advanceToExam(t, s)

	const n = 5
	for i := 0; i < n; i++ {
		if err := s.RecordIntegrity(model.IntegrityTabBlur); err != nil {
			t.Fatalf("record tab blur: %v", err)
		}
	}

	log := s.IntegrityLog()
	if len(log) != n {
		t.Fatalf("expected %d entries, got %d", n, len(log))
	}
	for i, ev := range log {
		if ev.Kind != model.IntegrityTabBlur || !ev.At.Equal(start) {
			t.Fatalf("entry %d altered: %+v", i, ev)
		}
	}
	if s.TabSwitches() != n {
		t.Fatalf("expected %d tab switches, got %d", n, s.TabSwitches())
	}

	// Recording more events leaves prior entries untouched.
	if err := s.RecordIntegrity(model.IntegrityCameraLost); err != nil {
		t.Fatalf("record camera loss: %v", err)
	}
	log2 := s.IntegrityLog()
	if !reflect.DeepEqual(log2[:n], log) {
		t.Fatalf("prior log entries were altered")
	}

	// The monitor is advisory: no phase change, no answer mutation.
	if s.Phase() != model.PhaseInProgress {
		t.Fatalf("integrity events must not force transitions, got %s", s.Phase())
	}
}

func TestMonitorDisabledDropsTabSignals(t *testing.T) {
	s := New(uuid.New(), buildTest(t, 1), uuid.New(), Config{DurationSeconds: 60})
	advanceToExam(t, s)

	if err := s.RecordIntegrity(model.IntegrityTabBlur); err != nil {
		t.Fatalf("tab blur with monitor off: %v", err)
	}
	if err := s.RecordIntegrity(model.IntegrityFullscreenExit); err != nil {
		t.Fatalf("fullscreen exit with monitor off: %v", err)
	}
	if len(s.IntegrityLog()) != 0 {
		t.Fatalf("tab signals must be dropped when monitoring is off")
	}

	// Camera loss is always recorded.
	if err := s.RecordIntegrity(model.IntegrityCameraLost); err != nil {
		t.Fatalf("camera lost: %v", err)
	}
	if len(s.IntegrityLog()) != 1 {
		t.Fatalf("camera loss must be recorded regardless of monitor flag")
	}

	if err := s.RecordIntegrity(model.IntegrityKind("PHONE_DETECTED")); err != ErrUnknownIntegrity {
		t.Fatalf("expected ErrUnknownIntegrity, got %v", err)
	}
}

func TestAbandonIsDistinctTerminalState(t *testing.T) {
	setups := map[string]func(t *testing.T, s *Session){
		"instructions": func(t *testing.T, s *Session) {},
		"system check": func(t *testing.T, s *Session) {
			if err := s.Advance(); err != nil {
				t.Fatalf("start test: %v", err)
			}
		},
		"in progress": advanceToExam,
	}
	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			s := New(uuid.New(), buildTest(t, 1), uuid.New(), Config{DurationSeconds: 60})
			setup(t, s)
			if err := s.Abandon(); err != nil {
				t.Fatalf("abandon from %s: %v", s.Phase(), err)
			}
			if s.Phase() != model.PhaseAbandoned {
				t.Fatalf("expected Abandoned, got %s", s.Phase())
			}
			if err := s.Abandon(); err != ErrTerminal {
				t.Fatalf("expected ErrTerminal on double abandon, got %v", err)
			}
		})
	}

	// A submitted session cannot be abandoned.
	s := New(uuid.New(), buildTest(t, 1), uuid.New(), Config{DurationSeconds: 60})
	advanceToExam(t, s)
	if err := s.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := s.Abandon(); err != ErrTerminal {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s := New(uuid.New(), buildTest(t, 2, 3), uuid.New(),
		Config{DurationSeconds: 120, MonitorEnabled: true, AutoSubmit: true},
		WithClock(fixedClock(start)),
		WithRand(rand.New(rand.NewSource(7))))
	advanceToExam(t, s)

	qid := s.QuestionOrder()[2]
	if err := s.SetAnswer(qid, model.Answer{"B"}); err != nil {
		t.Fatalf("set answer: %v", err)
	}
	if err := s.RecordIntegrity(model.IntegrityTabBlur); err != nil {
		t.Fatalf("record integrity: %v", err)
	}
	if err := s.Navigate(1, 2); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	s.Elapse(30)

	raw, err := json.Marshal(s.Snapshot())
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}

	restored := Restore(snap, WithClock(fixedClock(start)))
	if restored.Phase() != model.PhaseInProgress {
		t.Fatalf("phase lost: %s", restored.Phase())
	}
	if restored.RemainingSeconds() != 90 {
		t.Fatalf("timer lost: %d", restored.RemainingSeconds())
	}
	if got := restored.Answers()[qid]; !got.EqualSet([]string{"B"}) {
		t.Fatalf("answers lost: %v", got)
	}
	if len(restored.IntegrityLog()) != 1 {
		t.Fatalf("integrity log lost")
	}
	if restored.Position() != (Position{Section: 1, Question: 2}) {
		t.Fatalf("position lost: %+v", restored.Position())
	}
	if !reflect.DeepEqual(restored.QuestionOrder(), s.QuestionOrder()) {
		t.Fatalf("question order lost")
	}

	// The restored machine keeps enforcing the same invariants.
	restored.Elapse(90)
	if restored.Phase() != model.PhaseSubmitted {
		t.Fatalf("restored session must auto-submit at zero, got %s", restored.Phase())
	}
}
