package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/oddiant-techlabs/assessment-engine/internal/config"
	"github.com/oddiant-techlabs/assessment-engine/internal/model"
	"github.com/oddiant-techlabs/assessment-engine/internal/scoring"
	"github.com/oddiant-techlabs/assessment-engine/internal/session"
)

// Session orchestration errors.
var (
	ErrNoActiveSession = errors.New("no active session")
	ErrSessionFinished = errors.New("session already finished")
)

// SessionStore persists the durable session rows.
type SessionStore interface {
	Create(ctx context.Context, s *model.SessionRecord) error
	GetByTestAndCandidate(ctx context.Context, testID, candidateID uuid.UUID) (*model.SessionRecord, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.SessionRecord, error)
	Finish(ctx context.Context, id uuid.UUID, outcome model.SessionOutcome, finishedAt time.Time) error
	ListByTest(ctx context.Context, testID uuid.UUID) ([]model.SessionRecord, error)
}

// SessionService hosts the exam state machines. Live sessions are parked in
// Redis as snapshots between requests; every mutation loads the snapshot,
// applies elapsed wall-clock time, runs the operation and parks it again.
// Durable writes (answers, integrity events, results) go through the worker
// queues so the request path never waits on Postgres.
type SessionService struct {
	cfg      *config.Config
	tests    *TestService
	sessions SessionStore
	rdb      *redis.Client
}

// NewSessionService creates a new SessionService.
func NewSessionService(cfg *config.Config, tests *TestService, sessions SessionStore, rdb *redis.Client) *SessionService {
	return &SessionService{cfg: cfg, tests: tests, sessions: sessions, rdb: rdb}
}

// Begin starts (or resumes) the candidate's attempt at a test. The durable
// row is created once per candidate-test pair; a repeat call on a live
// attempt returns its current state, and a finished attempt is rejected.
func (s *SessionService) Begin(ctx context.Context, testID, candidateID uuid.UUID) (*model.SessionStateView, error) {
	test, err := s.tests.GetPublished(ctx, testID)
	if err != nil {
		return nil, err
	}

	if rec, err := s.sessions.GetByTestAndCandidate(ctx, testID, candidateID); err == nil {
		if rec.Outcome != model.OutcomeInProgress {
			return nil, ErrSessionFinished
		}
		if sess, err := s.load(ctx, testID, candidateID); err == nil {
			return s.settle(ctx, sess)
		} else if !errors.Is(err, ErrNoActiveSession) {
			return nil, err
		}
		// Snapshot evicted mid-attempt. Restart verification on a fresh
		// machine under the same durable row; the exam cannot be faked past.
		return s.freshMachine(ctx, test, rec.ID, candidateID)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	rec := &model.SessionRecord{
		ID:          uuid.New(),
		TestID:      testID,
		CandidateID: candidateID,
	}
	if err := s.sessions.Create(ctx, rec); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost a concurrent begin race; the winner's row is authoritative.
			return s.Begin(ctx, testID, candidateID)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	return s.freshMachine(ctx, test, rec.ID, candidateID)
}

func (s *SessionService) freshMachine(ctx context.Context, test *model.Test, sessionID, candidateID uuid.UUID) (*model.SessionStateView, error) {
	durationSeconds, err := s.tests.GetDurationSeconds(ctx, test.ID)
	if err != nil {
		durationSeconds = test.DurationMinutes * 60
	}

	cfg := session.Config{
		DurationSeconds:  durationSeconds,
		AutoSubmit:       test.Settings.AutoSubmit,
		ShuffleQuestions: test.Settings.ShuffleQuestions,
		MonitorEnabled:   test.Settings.PreventTabSwitching,
		StrictCamera:     s.cfg.StrictCamera,
		StrictIdentity:   s.cfg.StrictIdentity,
	}
	sess := session.New(sessionID, test, candidateID, cfg)
	if err := s.park(ctx, sess); err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("test_id", test.ID.String()).
		Str("candidate_id", candidateID.String()).
		Msg("session machine created")

	view := sess.StateView()
	return &view, nil
}

// State returns the current session document, applying elapsed time first so
// a reload after the deadline observes the auto-submit.
func (s *SessionService) State(ctx context.Context, testID, candidateID uuid.UUID) (*model.SessionStateView, error) {
	sess, err := s.load(ctx, testID, candidateID)
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, sess)
}

// AdvancePhase moves the machine one phase in the given direction.
func (s *SessionService) AdvancePhase(ctx context.Context, testID, candidateID uuid.UUID, direction string) (*model.SessionStateView, error) {
	sess, err := s.load(ctx, testID, candidateID)
	if err != nil {
		return nil, err
	}

	if direction == "back" {
		err = sess.Back()
	} else {
		err = sess.Advance()
	}
	if err != nil {
		return nil, err
	}

	if sess.Phase() == model.PhaseInProgress && sess.StartedAt() != nil {
		startKey := config.CacheKey.SessionStartKey(testID.String(), candidateID.String())
		if err := s.rdb.Set(ctx, startKey, sess.StartedAt().Format(time.RFC3339), s.cfg.SessionTTL).Err(); err != nil {
			log.Error().Err(err).Str("session_id", sess.ID().String()).Msg("failed to record exam start")
		}
	}

	return s.settle(ctx, sess)
}

// RecordSystemCheck stores the environment check report.
func (s *SessionService) RecordSystemCheck(ctx context.Context, testID, candidateID uuid.UUID, req model.SystemCheckRequest) (*model.SessionStateView, error) {
	sess, err := s.load(ctx, testID, candidateID)
	if err != nil {
		return nil, err
	}
	if err := sess.RecordSystemCheck(*req.CameraAccess, req.FullscreenActive, *req.BrowserCompatible); err != nil {
		return nil, err
	}
	return s.settle(ctx, sess)
}

// RecordIdentity stores identity artifacts for the verification phase.
func (s *SessionService) RecordIdentity(ctx context.Context, testID, candidateID uuid.UUID, req model.IdentityRequest) (*model.SessionStateView, error) {
	sess, err := s.load(ctx, testID, candidateID)
	if err != nil {
		return nil, err
	}
	if err := sess.SetIdentity(session.Identity{
		IDImageRef:      req.IDImageRef,
		FaceImageRef:    req.FaceImageRef,
		CandidateNumber: req.CandidateNumber,
	}); err != nil {
		return nil, err
	}
	return s.settle(ctx, sess)
}

// AcceptRules acknowledges the exam rules.
func (s *SessionService) AcceptRules(ctx context.Context, testID, candidateID uuid.UUID, accepted bool) (*model.SessionStateView, error) {
	sess, err := s.load(ctx, testID, candidateID)
	if err != nil {
		return nil, err
	}
	if err := sess.AcceptRules(accepted); err != nil {
		return nil, err
	}
	return s.settle(ctx, sess)
}

// SaveAnswer autosaves one answer and queues its durable write.
func (s *SessionService) SaveAnswer(ctx context.Context, testID, candidateID uuid.UUID, questionID string, value model.Answer) (*model.SessionStateView, error) {
	sess, err := s.load(ctx, testID, candidateID)
	if err != nil {
		return nil, err
	}
	if err := sess.SetAnswer(questionID, value); err != nil {
		return nil, err
	}

	job := model.AnswerJob{
		SessionID:   sess.ID(),
		TestID:      testID,
		CandidateID: candidateID,
		QuestionID:  questionID,
		Value:       value,
		SavedAt:     time.Now(),
	}
	s.enqueue(ctx, config.WorkerKey.PersistAnswersQueue, job)

	return s.settle(ctx, sess)
}

// Navigate updates the candidate's position within the paper.
func (s *SessionService) Navigate(ctx context.Context, testID, candidateID uuid.UUID, section, question int) (*model.SessionStateView, error) {
	sess, err := s.load(ctx, testID, candidateID)
	if err != nil {
		return nil, err
	}
	if err := sess.Navigate(section, question); err != nil {
		return nil, err
	}
	return s.settle(ctx, sess)
}

// ReportIntegrity records a proctoring signal, queues its durable write and
// fans it out to live monitors. Signals the machine drops (monitoring off for
// this test) are acknowledged but go nowhere.
func (s *SessionService) ReportIntegrity(ctx context.Context, testID, candidateID uuid.UUID, kind model.IntegrityKind) (*model.SessionStateView, error) {
	sess, err := s.load(ctx, testID, candidateID)
	if err != nil {
		return nil, err
	}

	before := len(sess.IntegrityLog())
	if err := sess.RecordIntegrity(kind); err != nil {
		return nil, err
	}

	if len(sess.IntegrityLog()) > before {
		now := time.Now()
		s.enqueue(ctx, config.WorkerKey.PersistIntegrityQueue, model.IntegrityJob{
			SessionID:   sess.ID(),
			TestID:      testID,
			CandidateID: candidateID,
			Kind:        kind,
			At:          now,
		})
		s.publishMonitor(ctx, model.MonitorEvent{
			TestID:      testID,
			CandidateID: candidateID,
			SessionID:   sess.ID(),
			Kind:        kind,
			TabSwitches: sess.TabSwitches(),
			At:          now,
		})
	}

	return s.settle(ctx, sess)
}

// Submit finalizes the attempt with whatever answers exist right now.
func (s *SessionService) Submit(ctx context.Context, testID, candidateID uuid.UUID) (*model.SessionStateView, error) {
	sess, err := s.load(ctx, testID, candidateID)
	if err != nil {
		return nil, err
	}
	if sess.Phase() == model.PhaseSubmitted {
		// The clock sync in load may have auto-submitted already. Settle
		// anyway: finalize is idempotent and the forced submission must still
		// land durably even when this call is the first one past the deadline.
		return s.settle(ctx, sess)
	}
	if err := sess.Submit(); err != nil {
		return nil, err
	}
	return s.settle(ctx, sess)
}

// Abandon terminates a non-finished attempt from the staff side.
func (s *SessionService) Abandon(ctx context.Context, sessionID uuid.UUID) error {
	rec, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if rec.Outcome != model.OutcomeInProgress {
		return ErrSessionFinished
	}

	if sess, err := s.load(ctx, rec.TestID, rec.CandidateID); err == nil {
		if err := sess.Abandon(); err == nil {
			if err := s.park(ctx, sess); err != nil {
				log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to park abandoned session")
			}
		}
	} else if !errors.Is(err, ErrNoActiveSession) {
		return err
	}

	if err := s.sessions.Finish(ctx, sessionID, model.OutcomeAbandoned, time.Now()); err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	log.Info().Str("session_id", sessionID.String()).Msg("session abandoned")
	return nil
}

// ListByTest returns the durable session rows for staff review.
func (s *SessionService) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.SessionRecord, error) {
	return s.sessions.ListByTest(ctx, testID)
}

// ─── Machine hosting ────────────────────────────────────────────────

// load rehydrates the parked machine and applies wall-clock time that passed
// since it was parked. The countdown is derived from the recorded start, so
// a candidate who disappears for an hour comes back to an expired (and, with
// auto-submit, submitted) session.
func (s *SessionService) load(ctx context.Context, testID, candidateID uuid.UUID) (*session.Session, error) {
	key := config.CacheKey.SessionStateKey(testID.String(), candidateID.String())
	raw, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("session cache read: %w", err)
	}

	var snap session.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("corrupt session snapshot: %w", err)
	}
	sess := session.Restore(snap)

	if snap.Phase == model.PhaseInProgress {
		// The exam-start key is the authoritative anchor; the snapshot's copy
		// is the fallback when the key has expired.
		startedAt := snap.StartedAt
		startKey := config.CacheKey.SessionStartKey(testID.String(), candidateID.String())
		if raw, err := s.rdb.Get(ctx, startKey).Result(); err == nil {
			if at, parseErr := time.Parse(time.RFC3339, raw); parseErr == nil {
				startedAt = &at
			}
		}
		if startedAt != nil {
			elapsed := int(time.Since(*startedAt).Seconds())
			expected := snap.Config.DurationSeconds - elapsed
			if expected < 0 {
				expected = 0
			}
			if drift := snap.RemainingSeconds - expected; drift > 0 {
				sess.Elapse(drift)
			}
		}
	}
	return sess, nil
}

// settle parks the machine back in Redis and, when this request drove it into
// Submitted, finalizes the attempt. Returns the candidate-facing view.
func (s *SessionService) settle(ctx context.Context, sess *session.Session) (*model.SessionStateView, error) {
	if sess.Phase() == model.PhaseSubmitted {
		if err := s.finalize(ctx, sess); err != nil {
			return nil, err
		}
	}
	if err := s.park(ctx, sess); err != nil {
		return nil, err
	}
	view := sess.StateView()
	return &view, nil
}

func (s *SessionService) park(ctx context.Context, sess *session.Session) error {
	raw, err := json.Marshal(sess.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	key := config.CacheKey.SessionStateKey(sess.TestID().String(), sess.CandidateID().String())
	if err := s.rdb.Set(ctx, key, raw, s.cfg.SessionTTL).Err(); err != nil {
		return fmt.Errorf("park session: %w", err)
	}
	return nil
}

// finalize scores the submission and hands the durable writes to the worker
// queue. Idempotent across retries: the durable row only transitions once and
// the result upsert is keyed by session.
func (s *SessionService) finalize(ctx context.Context, sess *session.Session) error {
	rec, err := s.sessions.GetByID(ctx, sess.ID())
	if err != nil {
		return fmt.Errorf("load session row: %w", err)
	}
	if rec.Outcome != model.OutcomeInProgress {
		return nil
	}

	test, err := s.tests.GetTest(ctx, sess.TestID())
	if err != nil {
		return fmt.Errorf("load test for scoring: %w", err)
	}

	submittedAt := time.Now()
	if at := sess.SubmittedAt(); at != nil {
		submittedAt = *at
	}

	result := scoring.Compute(test, sess.ID(), sess.CandidateID(), sess.Answers(), submittedAt)
	s.enqueue(ctx, config.WorkerKey.PersistResultsQueue, model.ResultJob{Result: *result})

	if err := s.sessions.Finish(ctx, sess.ID(), model.OutcomeSubmitted, submittedAt); err != nil {
		return fmt.Errorf("finish session: %w", err)
	}

	log.Info().
		Str("session_id", sess.ID().String()).
		Int("score", result.Score).
		Bool("needs_review", result.NeedsReview).
		Msg("session submitted")
	return nil
}

func (s *SessionService) enqueue(ctx context.Context, queue string, job any) {
	raw, err := json.Marshal(job)
	if err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("failed to marshal job")
		return
	}
	if err := s.rdb.RPush(ctx, queue, raw).Err(); err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("failed to enqueue job")
	}
}

func (s *SessionService) publishMonitor(ctx context.Context, ev model.MonitorEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal monitor event")
		return
	}
	channel := config.CacheKey.TestMonitorChannel(ev.TestID.String())
	if err := s.rdb.Publish(ctx, channel, raw).Err(); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("failed to publish monitor event")
	}
}
