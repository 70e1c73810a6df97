package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddiant-techlabs/assessment-engine/internal/model"
)

// SessionRepository handles assessment session rows. The durable row tracks
// the attempt's lifecycle; the live phase document lives in Redis.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create inserts a session row for a candidate beginning verification.
// The (test_id, candidate_id) pair is unique — a concurrent begin surfaces
// as pgx.ErrNoRows from the conflict clause.
func (r *SessionRepository) Create(ctx context.Context, s *model.SessionRecord) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO assessment_sessions (id, test_id, candidate_id, outcome)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (test_id, candidate_id) DO NOTHING
		 RETURNING started_at`,
		s.ID, s.TestID, s.CandidateID, model.OutcomeInProgress,
	).Scan(&s.StartedAt)
}

// GetByTestAndCandidate retrieves the session for one candidate-test pair.
func (r *SessionRepository) GetByTestAndCandidate(ctx context.Context, testID, candidateID uuid.UUID) (*model.SessionRecord, error) {
	s := &model.SessionRecord{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, test_id, candidate_id, started_at, finished_at, outcome
		 FROM assessment_sessions
		 WHERE test_id = $1 AND candidate_id = $2`, testID, candidateID,
	).Scan(&s.ID, &s.TestID, &s.CandidateID, &s.StartedAt, &s.FinishedAt, &s.Outcome)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByID retrieves a session row by its id.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.SessionRecord, error) {
	s := &model.SessionRecord{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, test_id, candidate_id, started_at, finished_at, outcome
		 FROM assessment_sessions
		 WHERE id = $1`, id,
	).Scan(&s.ID, &s.TestID, &s.CandidateID, &s.StartedAt, &s.FinishedAt, &s.Outcome)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Finish records a terminal outcome. Already-terminal rows are left
// untouched so a late abandonment sweep cannot clobber a submission.
func (r *SessionRepository) Finish(ctx context.Context, id uuid.UUID, outcome model.SessionOutcome, finishedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE assessment_sessions
		 SET outcome = $1, finished_at = $2
		 WHERE id = $3 AND outcome = $4`,
		outcome, finishedAt, id, model.OutcomeInProgress)
	return err
}

// ListByTest retrieves sessions for a test, newest first.
func (r *SessionRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.SessionRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, candidate_id, started_at, finished_at, outcome
		 FROM assessment_sessions
		 WHERE test_id = $1
		 ORDER BY started_at DESC`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.SessionRecord
	for rows.Next() {
		var s model.SessionRecord
		if err := rows.Scan(&s.ID, &s.TestID, &s.CandidateID, &s.StartedAt, &s.FinishedAt, &s.Outcome); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
