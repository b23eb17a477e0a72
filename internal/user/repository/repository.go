package repository

import (
	"context"

	"bloggers-platform/backend/internal/user/domain"
)

// Repository defines persistence for principals. Lookups return nil, nil when nothing matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// FindByLoginOrEmail matches either the login or the email, case-insensitively.
	FindByLoginOrEmail(ctx context.Context, loginOrEmail string) (*domain.User, error)
	// Create fails with autherr.ErrDuplicateCredential when the email or login is taken.
	Create(ctx context.Context, u *domain.User) error
	// UpdatePasswordHash fails with autherr.ErrNotFound when the user does not exist.
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	Exists(ctx context.Context, id string) (bool, error)
}
