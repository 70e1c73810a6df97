package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/oddiant-techlabs/assessment-engine/internal/config"
	"github.com/oddiant-techlabs/assessment-engine/internal/model"
	"github.com/oddiant-techlabs/assessment-engine/internal/session"
)

type fakeTestStore struct {
	tests map[uuid.UUID]*model.Test
}

func (f *fakeTestStore) GetByID(_ context.Context, id uuid.UUID) (*model.Test, error) {
	t, ok := f.tests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return t, nil
}

func (f *fakeTestStore) ListPublished(_ context.Context) ([]model.Test, error) {
	var out []model.Test
	for _, t := range f.tests {
		if t.Status == model.TestStatusPublished {
			out = append(out, *t)
		}
	}
	return out, nil
}

type pairKey struct{ testID, candidateID uuid.UUID }

type fakeSessionStore struct {
	byID   map[uuid.UUID]*model.SessionRecord
	byPair map[pairKey]uuid.UUID
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		byID:   make(map[uuid.UUID]*model.SessionRecord),
		byPair: make(map[pairKey]uuid.UUID),
	}
}

func (f *fakeSessionStore) Create(_ context.Context, s *model.SessionRecord) error {
	key := pairKey{s.TestID, s.CandidateID}
	if _, exists := f.byPair[key]; exists {
		return pgx.ErrNoRows
	}
	s.StartedAt = time.Now()
	s.Outcome = model.OutcomeInProgress
	cp := *s
	f.byID[s.ID] = &cp
	f.byPair[key] = s.ID
	return nil
}

func (f *fakeSessionStore) GetByTestAndCandidate(_ context.Context, testID, candidateID uuid.UUID) (*model.SessionRecord, error) {
	id, ok := f.byPair[pairKey{testID, candidateID}]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *f.byID[id]
	return &cp, nil
}

func (f *fakeSessionStore) GetByID(_ context.Context, id uuid.UUID) (*model.SessionRecord, error) {
	rec, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeSessionStore) Finish(_ context.Context, id uuid.UUID, outcome model.SessionOutcome, finishedAt time.Time) error {
	rec, ok := f.byID[id]
	if !ok || rec.Outcome != model.OutcomeInProgress {
		return nil
	}
	rec.Outcome = outcome
	rec.FinishedAt = &finishedAt
	return nil
}

func (f *fakeSessionStore) ListByTest(_ context.Context, testID uuid.UUID) ([]model.SessionRecord, error) {
	var out []model.SessionRecord
	for _, rec := range f.byID {
		if rec.TestID == testID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func publishedTest(settings model.TestSettings) *model.Test {
	q1 := model.Question{
		ID: uuid.New(), Text: "Capital of France?", Type: model.QuestionTypeMultipleChoice,
		Options: []string{"Paris", "Lyon"}, CorrectAnswer: []string{"Paris"}, Points: 5,
	}
	q2 := model.Question{
		ID: uuid.New(), Text: "2+2?", Type: model.QuestionTypeMultipleChoice,
		Options: []string{"3", "4"}, CorrectAnswer: []string{"4"}, Points: 5,
	}
	return &model.Test{
		ID:              uuid.New(),
		Name:            "General Aptitude",
		DurationMinutes: 30,
		PassingScore:    50,
		Settings:        settings,
		Status:          model.TestStatusPublished,
		Sections: []model.Section{{
			ID: uuid.New(), Title: "MCQ", QuestionType: model.QuestionTypeMultipleChoice,
			Questions: []model.Question{q1, q2},
		}},
	}
}

type sessionHarness struct {
	svc   *SessionService
	store *fakeSessionStore
	rdb   *redis.Client
	mr    *miniredis.Miniredis
	test  *model.Test
	cand  uuid.UUID
}

func newSessionHarness(t *testing.T, settings model.TestSettings) *sessionHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{SessionTTL: time.Hour}
	test := publishedTest(settings)
	tests := NewTestService(cfg, &fakeTestStore{tests: map[uuid.UUID]*model.Test{test.ID: test}}, rdb)
	store := newFakeSessionStore()

	return &sessionHarness{
		svc:   NewSessionService(cfg, tests, store, rdb),
		store: store,
		rdb:   rdb,
		mr:    mr,
		test:  test,
		cand:  uuid.New(),
	}
}

func boolPtr(b bool) *bool { return &b }

// walkToExam drives the verification funnel to InProgress.
func (h *sessionHarness) walkToExam(t *testing.T, ctx context.Context) {
	t.Helper()
	steps := []func() error{
		func() error { _, err := h.svc.AdvancePhase(ctx, h.test.ID, h.cand, "advance"); return err },
		func() error {
			_, err := h.svc.RecordSystemCheck(ctx, h.test.ID, h.cand, model.SystemCheckRequest{
				CameraAccess: boolPtr(true), FullscreenActive: true, BrowserCompatible: boolPtr(true),
			})
			return err
		},
		func() error { _, err := h.svc.AdvancePhase(ctx, h.test.ID, h.cand, "advance"); return err },
		func() error {
			_, err := h.svc.RecordIdentity(ctx, h.test.ID, h.cand, model.IdentityRequest{CandidateNumber: "CN-1042"})
			return err
		},
		func() error { _, err := h.svc.AdvancePhase(ctx, h.test.ID, h.cand, "advance"); return err },
		func() error { _, err := h.svc.AcceptRules(ctx, h.test.ID, h.cand, true); return err },
		func() error { _, err := h.svc.AdvancePhase(ctx, h.test.ID, h.cand, "advance"); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("funnel step %d: %v", i, err)
		}
	}
}

func TestBeginParksMachineInRedis(t *testing.T) {
	h := newSessionHarness(t, model.TestSettings{})
	ctx := context.Background()

	view, err := h.svc.Begin(ctx, h.test.ID, h.cand)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if view.Phase != model.PhaseInstructions {
		t.Fatalf("phase = %s, want INSTRUCTIONS", view.Phase)
	}

	key := config.CacheKey.SessionStateKey(h.test.ID.String(), h.cand.String())
	if !h.mr.Exists(key) {
		t.Fatal("session snapshot not parked in redis")
	}
}

func TestBeginResumesLiveAttempt(t *testing.T) {
	h := newSessionHarness(t, model.TestSettings{})
	ctx := context.Background()

	first, err := h.svc.Begin(ctx, h.test.ID, h.cand)
	if err != nil {
		t.Fatalf("first Begin: %v", err)
	}
	second, err := h.svc.Begin(ctx, h.test.ID, h.cand)
	if err != nil {
		t.Fatalf("second Begin: %v", err)
	}
	if first.SessionID != second.SessionID {
		t.Fatalf("repeat begin created a new attempt: %s vs %s", first.SessionID, second.SessionID)
	}
	if len(h.store.byID) != 1 {
		t.Fatalf("durable rows = %d, want 1", len(h.store.byID))
	}
}

func TestBeginRejectsFinishedAttempt(t *testing.T) {
	h := newSessionHarness(t, model.TestSettings{})
	ctx := context.Background()

	if _, err := h.svc.Begin(ctx, h.test.ID, h.cand); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	h.walkToExam(t, ctx)
	if _, err := h.svc.Submit(ctx, h.test.ID, h.cand); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := h.svc.Begin(ctx, h.test.ID, h.cand); !errors.Is(err, ErrSessionFinished) {
		t.Fatalf("re-begin after submit: err = %v, want ErrSessionFinished", err)
	}
}

func TestSubmitQueuesResultAndFinishesRow(t *testing.T) {
	h := newSessionHarness(t, model.TestSettings{})
	ctx := context.Background()

	if _, err := h.svc.Begin(ctx, h.test.ID, h.cand); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	h.walkToExam(t, ctx)

	qID := h.test.Sections[0].Questions[0].ID.String()
	if _, err := h.svc.SaveAnswer(ctx, h.test.ID, h.cand, qID, model.Answer{"Paris"}); err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}

	view, err := h.svc.Submit(ctx, h.test.ID, h.cand)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if view.Phase != model.PhaseSubmitted {
		t.Fatalf("phase = %s, want SUBMITTED", view.Phase)
	}

	// One autosave job, one result job.
	if n, _ := h.rdb.LLen(ctx, config.WorkerKey.PersistAnswersQueue).Result(); n != 1 {
		t.Fatalf("answer queue length = %d, want 1", n)
	}
	raw, err := h.rdb.LPop(ctx, config.WorkerKey.PersistResultsQueue).Result()
	if err != nil {
		t.Fatalf("result queue empty: %v", err)
	}
	var job model.ResultJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		t.Fatalf("decode result job: %v", err)
	}
	if job.Result.Score != 50 {
		t.Fatalf("score = %d, want 50 (1 of 2 questions, equal points)", job.Result.Score)
	}
	if job.Result.ResultsDeclared {
		t.Fatal("freshly computed result must be undeclared")
	}

	rec, err := h.store.GetByTestAndCandidate(ctx, h.test.ID, h.cand)
	if err != nil {
		t.Fatalf("GetByTestAndCandidate: %v", err)
	}
	if rec.Outcome != model.OutcomeSubmitted {
		t.Fatalf("row outcome = %s, want SUBMITTED", rec.Outcome)
	}
}

// rewindStart moves the session's exam start back by d, rewriting both the
// parked snapshot and the start key so the countdown anchor agrees.
func (h *sessionHarness) rewindStart(t *testing.T, ctx context.Context, d time.Duration) {
	t.Helper()
	key := config.CacheKey.SessionStateKey(h.test.ID.String(), h.cand.String())
	raw, err := h.rdb.Get(ctx, key).Result()
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snap session.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	past := time.Now().Add(-d)
	snap.StartedAt = &past
	rewound, _ := json.Marshal(snap)
	if err := h.rdb.Set(ctx, key, rewound, time.Hour).Err(); err != nil {
		t.Fatalf("rewrite snapshot: %v", err)
	}

	startKey := config.CacheKey.SessionStartKey(h.test.ID.String(), h.cand.String())
	if err := h.rdb.Set(ctx, startKey, past.Format(time.RFC3339), time.Hour).Err(); err != nil {
		t.Fatalf("rewrite start key: %v", err)
	}
}

func TestReloadAfterDeadlineAutoSubmits(t *testing.T) {
	h := newSessionHarness(t, model.TestSettings{AutoSubmit: true})
	ctx := context.Background()

	if _, err := h.svc.Begin(ctx, h.test.ID, h.cand); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	h.walkToExam(t, ctx)
	h.rewindStart(t, ctx, 2*time.Hour)

	view, err := h.svc.State(ctx, h.test.ID, h.cand)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if view.Phase != model.PhaseSubmitted {
		t.Fatalf("phase after deadline = %s, want SUBMITTED", view.Phase)
	}
	if view.RemainingSeconds != 0 {
		t.Fatalf("remaining = %d, want 0", view.RemainingSeconds)
	}
	if n, _ := h.rdb.LLen(ctx, config.WorkerKey.PersistResultsQueue).Result(); n != 1 {
		t.Fatalf("result queue length = %d, want 1", n)
	}
}

func TestReloadAfterDeadlineClampsWithoutAutoSubmit(t *testing.T) {
	h := newSessionHarness(t, model.TestSettings{})
	ctx := context.Background()

	if _, err := h.svc.Begin(ctx, h.test.ID, h.cand); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	h.walkToExam(t, ctx)
	h.rewindStart(t, ctx, 2*time.Hour)

	view, err := h.svc.State(ctx, h.test.ID, h.cand)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if view.Phase != model.PhaseInProgress {
		t.Fatalf("phase = %s, want IN_PROGRESS (no auto-submit)", view.Phase)
	}
	if view.RemainingSeconds != 0 {
		t.Fatalf("remaining = %d, want clamped 0", view.RemainingSeconds)
	}
}

func TestSubmitAfterDeadlineFinalizes(t *testing.T) {
	h := newSessionHarness(t, model.TestSettings{AutoSubmit: true})
	ctx := context.Background()

	if _, err := h.svc.Begin(ctx, h.test.ID, h.cand); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	h.walkToExam(t, ctx)
	h.rewindStart(t, ctx, 2*time.Hour)

	// The clock sync inside Submit forces the phase over before the explicit
	// submit runs. The forced submission must still land durably.
	view, err := h.svc.Submit(ctx, h.test.ID, h.cand)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if view.Phase != model.PhaseSubmitted {
		t.Fatalf("phase = %s, want SUBMITTED", view.Phase)
	}
	if n, _ := h.rdb.LLen(ctx, config.WorkerKey.PersistResultsQueue).Result(); n != 1 {
		t.Fatalf("result queue length = %d, want 1", n)
	}
	rec, err := h.store.GetByTestAndCandidate(ctx, h.test.ID, h.cand)
	if err != nil {
		t.Fatalf("GetByTestAndCandidate: %v", err)
	}
	if rec.Outcome != model.OutcomeSubmitted {
		t.Fatalf("row outcome = %s, want SUBMITTED", rec.Outcome)
	}
}

func TestStartKeyAnchorsCountdown(t *testing.T) {
	h := newSessionHarness(t, model.TestSettings{AutoSubmit: true})
	ctx := context.Background()

	if _, err := h.svc.Begin(ctx, h.test.ID, h.cand); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	h.walkToExam(t, ctx)

	// Rewind only the start key; the snapshot keeps its fresh timestamp. The
	// key is the authoritative anchor, so the deadline must still fire.
	past := time.Now().Add(-2 * time.Hour)
	startKey := config.CacheKey.SessionStartKey(h.test.ID.String(), h.cand.String())
	if err := h.rdb.Set(ctx, startKey, past.Format(time.RFC3339), time.Hour).Err(); err != nil {
		t.Fatalf("rewrite start key: %v", err)
	}

	view, err := h.svc.State(ctx, h.test.ID, h.cand)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if view.Phase != model.PhaseSubmitted {
		t.Fatalf("phase = %s, want SUBMITTED", view.Phase)
	}
}

func TestIntegrityReportQueuesAndPublishes(t *testing.T) {
	h := newSessionHarness(t, model.TestSettings{PreventTabSwitching: true})
	ctx := context.Background()

	if _, err := h.svc.Begin(ctx, h.test.ID, h.cand); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	h.walkToExam(t, ctx)

	view, err := h.svc.ReportIntegrity(ctx, h.test.ID, h.cand, model.IntegrityTabBlur)
	if err != nil {
		t.Fatalf("ReportIntegrity: %v", err)
	}
	if view.TabSwitches != 1 {
		t.Fatalf("tab switches = %d, want 1", view.TabSwitches)
	}

	raw, err := h.rdb.LPop(ctx, config.WorkerKey.PersistIntegrityQueue).Result()
	if err != nil {
		t.Fatalf("integrity queue empty: %v", err)
	}
	var job model.IntegrityJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		t.Fatalf("decode integrity job: %v", err)
	}
	if job.Kind != model.IntegrityTabBlur {
		t.Fatalf("kind = %s, want TAB_BLUR", job.Kind)
	}
}

func TestIntegrityDroppedWhenMonitoringDisabled(t *testing.T) {
	h := newSessionHarness(t, model.TestSettings{PreventTabSwitching: false})
	ctx := context.Background()

	if _, err := h.svc.Begin(ctx, h.test.ID, h.cand); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	h.walkToExam(t, ctx)

	view, err := h.svc.ReportIntegrity(ctx, h.test.ID, h.cand, model.IntegrityTabBlur)
	if err != nil {
		t.Fatalf("ReportIntegrity: %v", err)
	}
	if view.TabSwitches != 0 {
		t.Fatalf("tab switches = %d, want 0 (monitoring off)", view.TabSwitches)
	}
	if n, _ := h.rdb.LLen(ctx, config.WorkerKey.PersistIntegrityQueue).Result(); n != 0 {
		t.Fatalf("integrity queue length = %d, want 0", n)
	}
}

func TestSaveAnswerRejectsUnknownQuestion(t *testing.T) {
	h := newSessionHarness(t, model.TestSettings{})
	ctx := context.Background()

	if _, err := h.svc.Begin(ctx, h.test.ID, h.cand); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	h.walkToExam(t, ctx)

	_, err := h.svc.SaveAnswer(ctx, h.test.ID, h.cand, uuid.New().String(), model.Answer{"A"})
	if !errors.Is(err, session.ErrUnknownQuestion) {
		t.Fatalf("err = %v, want ErrUnknownQuestion", err)
	}
	if n, _ := h.rdb.LLen(ctx, config.WorkerKey.PersistAnswersQueue).Result(); n != 0 {
		t.Fatalf("answer queue length = %d, want 0", n)
	}
}

func TestAbandonFinishesRowDistinctly(t *testing.T) {
	h := newSessionHarness(t, model.TestSettings{})
	ctx := context.Background()

	if _, err := h.svc.Begin(ctx, h.test.ID, h.cand); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	rec, err := h.store.GetByTestAndCandidate(ctx, h.test.ID, h.cand)
	if err != nil {
		t.Fatalf("GetByTestAndCandidate: %v", err)
	}

	if err := h.svc.Abandon(ctx, rec.ID); err != nil {
		t.Fatalf("Abandon: %v", err)
	}

	rec, _ = h.store.GetByTestAndCandidate(ctx, h.test.ID, h.cand)
	if rec.Outcome != model.OutcomeAbandoned {
		t.Fatalf("outcome = %s, want ABANDONED", rec.Outcome)
	}
	if n, _ := h.rdb.LLen(ctx, config.WorkerKey.PersistResultsQueue).Result(); n != 0 {
		t.Fatalf("abandoned session must not queue a result, queue length = %d", n)
	}

	if err := h.svc.Abandon(ctx, rec.ID); !errors.Is(err, ErrSessionFinished) {
		t.Fatalf("second abandon: err = %v, want ErrSessionFinished", err)
	}
}

func TestStateForUnknownSession(t *testing.T) {
	h := newSessionHarness(t, model.TestSettings{})

	_, err := h.svc.State(context.Background(), h.test.ID, uuid.New())
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("err = %v, want ErrNoActiveSession", err)
	}
}
