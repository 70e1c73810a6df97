package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddiant-techlabs/assessment-engine/internal/model"
)

// CandidateRepository handles candidate and staff account rows. Candidate
// CRUD lives in the platform backend; the engine only reads for auth.
type CandidateRepository struct {
	pool *pgxpool.Pool
}

// NewCandidateRepository creates a new CandidateRepository.
func NewCandidateRepository(pool *pgxpool.Pool) *CandidateRepository {
	return &CandidateRepository{pool: pool}
}

// GetByEmail retrieves a candidate by email.
func (r *CandidateRepository) GetByEmail(ctx context.Context, email string) (*model.Candidate, error) {
	c := &model.Candidate{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, access_code_hash, created_at
		 FROM candidates
		 WHERE email = $1`, email,
	).Scan(&c.ID, &c.Email, &c.Name, &c.AccessCodeHash, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetByID retrieves a candidate by id.
func (r *CandidateRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Candidate, error) {
	c := &model.Candidate{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, access_code_hash, created_at
		 FROM candidates
		 WHERE id = $1`, id,
	).Scan(&c.ID, &c.Email, &c.Name, &c.AccessCodeHash, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetStaffByEmail retrieves a staff account by email.
func (r *CandidateRepository) GetStaffByEmail(ctx context.Context, email string) (*model.Staff, error) {
	s := &model.Staff{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, password_hash, created_at
		 FROM staff
		 WHERE email = $1`, email,
	).Scan(&s.ID, &s.Email, &s.Name, &s.PasswordHash, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CreateStaff inserts a staff account. Used by the seeding CLI.
func (r *CandidateRepository) CreateStaff(ctx context.Context, email, name, passwordHash string) (int, error) {
	var id int
	err := r.pool.QueryRow(ctx,
		`INSERT INTO staff (email, name, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id`, email, name, passwordHash,
	).Scan(&id)
	return id, err
}
