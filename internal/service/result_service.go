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
	"github.com/oddiant-techlabs/assessment-engine/internal/repository"
)

// ErrResultNotFound is returned when no result exists for the lookup.
var ErrResultNotFound = errors.New("result not found")

// ResultStore persists computed results and their declaration flags.
type ResultStore interface {
	Save(ctx context.Context, res *model.Result) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Result, error)
	GetByTestAndCandidate(ctx context.Context, testID, candidateID uuid.UUID) (*model.Result, error)
	DeclareIndividual(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	DeclareBatch(ctx context.Context, testID uuid.UUID, at time.Time) ([]model.Result, error)
	ListByTest(ctx context.Context, testID uuid.UUID, page, perPage int, undeclaredOnly bool) ([]repository.StaffResult, int64, error)
	IntegrityLogForSession(ctx context.Context, testID, candidateID uuid.UUID) ([]model.IntegrityEvent, error)
}

// ResultService owns the declaration gate: results exist as soon as scoring
// runs, but candidates see nothing until staff explicitly declare them.
type ResultService struct {
	results ResultStore
	rdb     *redis.Client
}

// NewResultService creates a new ResultService.
func NewResultService(results ResultStore, rdb *redis.Client) *ResultService {
	return &ResultService{results: results, rdb: rdb}
}

// CandidateView returns the candidate's result projection for a test. Before
// declaration the view is pending with score and status withheld; the
// distinction between "not yet scored" and "scored, undeclared" is
// deliberately invisible to the candidate.
func (s *ResultService) CandidateView(ctx context.Context, testID, candidateID uuid.UUID) (*model.CandidateResultView, error) {
	res, err := s.results.GetByTestAndCandidate(ctx, testID, candidateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}
	view := model.ViewFor(res)
	return &view, nil
}

// DeclareIndividual declares one result. Idempotent: declaring an already
// declared result is a no-op success, and the notification fires only on the
// actual transition.
func (s *ResultService) DeclareIndividual(ctx context.Context, resultID uuid.UUID) (*model.Result, error) {
	res, err := s.results.GetByID(ctx, resultID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}

	now := time.Now()
	transitioned, err := s.results.DeclareIndividual(ctx, resultID, now)
	if err != nil {
		return nil, fmt.Errorf("declare result: %w", err)
	}
	if transitioned {
		res.ResultsDeclared = true
		res.DeclaredAt = &now
		s.queueNotification(ctx, res)
		log.Info().
			Str("result_id", resultID.String()).
			Str("candidate_id", res.CandidateID.String()).
			Msg("result declared")
	}
	return res, nil
}

// DeclareBatch declares every undeclared result for a test and returns how
// many transitioned. Already-declared results are untouched, so a re-run
// declares only stragglers and notifies nobody twice.
func (s *ResultService) DeclareBatch(ctx context.Context, testID uuid.UUID) (int, error) {
	declared, err := s.results.DeclareBatch(ctx, testID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("declare batch: %w", err)
	}
	for i := range declared {
		s.queueNotification(ctx, &declared[i])
	}
	log.Info().
		Str("test_id", testID.String()).
		Int("declared", len(declared)).
		Msg("batch declaration complete")
	return len(declared), nil
}

// ListByTest returns paginated results for the staff review screen.
func (s *ResultService) ListByTest(ctx context.Context, testID uuid.UUID, page, perPage int, undeclaredOnly bool) ([]repository.StaffResult, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return s.results.ListByTest(ctx, testID, page, perPage, undeclaredOnly)
}

// IntegrityLog returns the persisted proctoring log for one attempt.
func (s *ResultService) IntegrityLog(ctx context.Context, testID, candidateID uuid.UUID) ([]model.IntegrityEvent, error) {
	return s.results.IntegrityLogForSession(ctx, testID, candidateID)
}

// queueNotification hands the candidate notification to the notify worker.
// Declaration already happened; a queue failure is logged, not surfaced.
func (s *ResultService) queueNotification(ctx context.Context, res *model.Result) {
	job := model.NotificationJob{
		CandidateID: res.CandidateID,
		TestID:      res.TestID,
		ResultID:    res.ID,
		Kind:        model.NotificationKindResultDeclared,
		QueuedAt:    time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		log.Error().Err(err).Str("result_id", res.ID.String()).Msg("failed to marshal notification")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.NotifyCandidatesQueue, raw).Err(); err != nil {
		log.Error().Err(err).Str("result_id", res.ID.String()).Msg("failed to queue notification")
	}
}
