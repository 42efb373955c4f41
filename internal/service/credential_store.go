package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// CredentialStore owns user identities and their password hashes.
type CredentialStore struct {
	users      repository.UserRepository
	bcryptCost int
}

// NewCredentialStore builds the store.
func NewCredentialStore(users repository.UserRepository, bcryptCost int) *CredentialStore {
	return &CredentialStore{users: users, bcryptCost: bcryptCost}
}

// Create registers a user with a freshly hashed password. An empty role defaults to Operator.
func (s *CredentialStore) Create(ctx context.Context, name, email, password string, role domain.Role) (*domain.User, error) {
	email = repository.NormalizeEmail(email)
	if role == "" {
		role = domain.RoleOperator
	}
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": role})
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewDuplicateEmail(email)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		if auth.IsTooLong(err) {
			return nil, apperrors.NewValidationError("password must be at most 72 bytes", map[string]any{"password": "max"})
		}
		return nil, err
	}

	user := &domain.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperrors.NewDuplicateEmail(email)
		}
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

// Verify returns the user owning email when password matches, or nil when it does not.
func (s *CredentialStore) Verify(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.users.GetCredentialsByEmail(ctx, email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		if auth.IsMismatch(err) {
			return nil, nil
		}
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

// FindByID loads a user without credentials. It returns nil, nil when absent.
func (s *CredentialStore) FindByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

var _ auth.UserFinder = (*CredentialStore)(nil)
