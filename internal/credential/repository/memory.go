package repository

import (
	"context"
	"sync"
	"time"

	"bloggers-platform/backend/internal/autherr"
	"bloggers-platform/backend/internal/credential/domain"
	"bloggers-platform/backend/internal/security"
)

// Principals is the slice of the user store the in-memory credential store needs.
type Principals interface {
	Exists(ctx context.Context, id string) (bool, error)
	MarkEmailConfirmed(ctx context.Context, id string) bool
}

// MemoryRepository keeps credentials in process memory, keyed by principal.
type MemoryRepository struct {
	mu            sync.Mutex
	principals    Principals
	confirmations map[string]*domain.Confirmation
	recoveries    map[string]*domain.Recovery
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty store that checks principals for existence and confirmation.
func NewMemoryRepository(principals Principals) *MemoryRepository {
	return &MemoryRepository{
		principals:    principals,
		confirmations: make(map[string]*domain.Confirmation),
		recoveries:    make(map[string]*domain.Recovery),
	}
}

func (r *MemoryRepository) SetConfirmation(ctx context.Context, principalID, code string, expiresAt time.Time) error {
	ok, err := r.principals.Exists(ctx, principalID)
	if err != nil {
		return err
	}
	if !ok {
		return autherr.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, found := r.confirmations[principalID]; found && c.IsConfirmed {
		return autherr.ErrAlreadyConfirmed
	}
	r.confirmations[principalID] = &domain.Confirmation{
		PrincipalID: principalID,
		CodeHash:    security.HashSecret(code),
		ExpiresAt:   expiresAt,
	}
	return nil
}

func (r *MemoryRepository) FindByConfirmationCode(ctx context.Context, code string) (*domain.Confirmation, error) {
	h := security.HashSecret(code)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.confirmations {
		if c.CodeHash == h {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) MarkConfirmed(ctx context.Context, principalID, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.confirmations[principalID]
	if !ok || c.IsConfirmed || !security.SecretHashEqual(code, c.CodeHash) {
		return false, nil
	}
	if !r.principals.MarkEmailConfirmed(ctx, principalID) {
		return false, nil
	}
	c.IsConfirmed = true
	return true, nil
}

func (r *MemoryRepository) SetRecovery(ctx context.Context, principalID, code string, expiresAt time.Time) error {
	ok, err := r.principals.Exists(ctx, principalID)
	if err != nil {
		return err
	}
	if !ok {
		return autherr.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recoveries[principalID] = &domain.Recovery{
		PrincipalID: principalID,
		CodeHash:    security.HashSecret(code),
		ExpiresAt:   expiresAt,
	}
	return nil
}

func (r *MemoryRepository) FindByRecoveryCode(ctx context.Context, code string) (*domain.Recovery, error) {
	h := security.HashSecret(code)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.recoveries {
		if rec.CodeHash == h {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ConsumeRecovery(ctx context.Context, principalID, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recoveries[principalID]
	if !ok || !security.SecretHashEqual(code, rec.CodeHash) {
		return false, nil
	}
	delete(r.recoveries, principalID)
	return true, nil
}
