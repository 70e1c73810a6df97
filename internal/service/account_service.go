package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/oddiant-techlabs/assessment-engine/internal/model"
)

// AccountStore reads candidate and staff accounts.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*model.Candidate, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Candidate, error)
	GetStaffByEmail(ctx context.Context, email string) (*model.Staff, error)
}

// AccountService exposes account lookups to the handlers. Account creation
// lives in the platform backend; the engine only authenticates.
type AccountService struct {
	accounts AccountStore
}

// NewAccountService creates a new AccountService.
func NewAccountService(accounts AccountStore) *AccountService {
	return &AccountService{accounts: accounts}
}

// GetCandidateByEmail retrieves a candidate by email.
func (s *AccountService) GetCandidateByEmail(ctx context.Context, email string) (*model.Candidate, error) {
	return s.accounts.GetByEmail(ctx, email)
}

// GetCandidateByID retrieves a candidate by id.
func (s *AccountService) GetCandidateByID(ctx context.Context, id uuid.UUID) (*model.Candidate, error) {
	return s.accounts.GetByID(ctx, id)
}

// GetStaffByEmail retrieves a staff account by email.
func (s *AccountService) GetStaffByEmail(ctx context.Context, email string) (*model.Staff, error) {
	return s.accounts.GetStaffByEmail(ctx, email)
}
