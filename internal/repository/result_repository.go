package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddiant-techlabs/assessment-engine/internal/model"
)

// StaffResult joins a result with candidate data for the review screen.
type StaffResult struct {
	model.Result
	CandidateName  string `json:"candidate_name"`
	CandidateEmail string `json:"candidate_email"`
}

// ResultRepository handles computed assessment results and the declaration
// flag that gates candidate visibility.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// Save upserts a computed result keyed by session. Re-submission of the same
// session (worker retry) overwrites the score but never the declaration flag.
func (r *ResultRepository) Save(ctx context.Context, res *model.Result) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO results (id, session_id, test_id, candidate_id, score, status, needs_review, completion_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (session_id) DO UPDATE
		 SET score = EXCLUDED.score,
		     status = EXCLUDED.status,
		     needs_review = EXCLUDED.needs_review,
		     completion_date = EXCLUDED.completion_date`,
		res.ID, res.SessionID, res.TestID, res.CandidateID,
		res.Score, res.Status, res.NeedsReview, res.CompletionDate)
	return err
}

// GetByID retrieves one result.
func (r *ResultRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Result, error) {
	return r.scanOne(r.pool.QueryRow(ctx, selectResult+` WHERE id = $1`, id))
}

// GetByTestAndCandidate retrieves the candidate's result for a test.
func (r *ResultRepository) GetByTestAndCandidate(ctx context.Context, testID, candidateID uuid.UUID) (*model.Result, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		selectResult+` WHERE test_id = $1 AND candidate_id = $2`, testID, candidateID))
}

const selectResult = `SELECT id, session_id, test_id, candidate_id, score, status, needs_review,
       completion_date, results_declared, declared_at
FROM results`

func (r *ResultRepository) scanOne(row interface{ Scan(...any) error }) (*model.Result, error) {
	res := &model.Result{}
	err := row.Scan(&res.ID, &res.SessionID, &res.TestID, &res.CandidateID,
		&res.Score, &res.Status, &res.NeedsReview,
		&res.CompletionDate, &res.ResultsDeclared, &res.DeclaredAt)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DeclareIndividual flips the declaration flag for exactly one result.
// Returns true when this call performed the transition, false when the
// result was already declared (a no-op success for the caller).
func (r *ResultRepository) DeclareIndividual(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE results
		 SET results_declared = TRUE, declared_at = $1
		 WHERE id = $2 AND results_declared = FALSE`,
		at, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DeclareBatch declares every undeclared result for a test and returns the
// transitioned rows so the caller can fan out notifications. Each row flips
// atomically; a failure on one row cannot hold back the others because the
// set is a single predicate update.
func (r *ResultRepository) DeclareBatch(ctx context.Context, testID uuid.UUID, at time.Time) ([]model.Result, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE results
		 SET results_declared = TRUE, declared_at = $1
		 WHERE test_id = $2 AND results_declared = FALSE
		 RETURNING id, session_id, test_id, candidate_id, score, status, needs_review,
		           completion_date, results_declared, declared_at`,
		at, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var declared []model.Result
	for rows.Next() {
		var res model.Result
		if err := rows.Scan(&res.ID, &res.SessionID, &res.TestID, &res.CandidateID,
			&res.Score, &res.Status, &res.NeedsReview,
			&res.CompletionDate, &res.ResultsDeclared, &res.DeclaredAt); err != nil {
			return nil, err
		}
		declared = append(declared, res)
	}
	return declared, rows.Err()
}

// ListByTest retrieves paginated results for staff review, optionally
// filtered to undeclared ones.
func (r *ResultRepository) ListByTest(ctx context.Context, testID uuid.UUID, page, perPage int, undeclaredOnly bool) ([]StaffResult, int64, error) {
	offset := (page - 1) * perPage

	baseQuery := `
		FROM results res
		JOIN candidates c ON res.candidate_id = c.id
		WHERE res.test_id = $1
	`
	args := []any{testID}
	if undeclaredOnly {
		baseQuery += " AND res.results_declared = FALSE"
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT res.id, res.session_id, res.test_id, res.candidate_id, res.score, res.status,
		       res.needs_review, res.completion_date, res.results_declared, res.declared_at,
		       c.name, c.email
		` + baseQuery + `
		ORDER BY res.completion_date DESC
		LIMIT $` + fmt.Sprintf("%d", len(args)+1) + ` OFFSET $` + fmt.Sprintf("%d", len(args)+2)
	args = append(args, perPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []StaffResult
	for rows.Next() {
		var sr StaffResult
		if err := rows.Scan(&sr.ID, &sr.SessionID, &sr.TestID, &sr.CandidateID, &sr.Score, &sr.Status,
			&sr.NeedsReview, &sr.CompletionDate, &sr.ResultsDeclared, &sr.DeclaredAt,
			&sr.CandidateName, &sr.CandidateEmail); err != nil {
			return nil, 0, err
		}
		results = append(results, sr)
	}
	return results, total, rows.Err()
}

// IntegrityLogForSession returns the persisted proctoring log for one
// session, in recording order, for staff review.
func (r *ResultRepository) IntegrityLogForSession(ctx context.Context, testID, candidateID uuid.UUID) ([]model.IntegrityEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT kind, recorded_at
		 FROM integrity_events
		 WHERE test_id = $1 AND candidate_id = $2
		 ORDER BY recorded_at, id`, testID, candidateID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.IntegrityEvent
	for rows.Next() {
		var ev model.IntegrityEvent
		if err := rows.Scan(&ev.Kind, &ev.At); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
