package repository

import (
	"context"
	"strings"
	"sync"

	"bloggers-platform/backend/internal/autherr"
	"bloggers-platform/backend/internal/user/domain"
)

// MemoryRepository keeps users in process memory. Used when no database is configured and in tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*domain.User
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty in-memory user repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.User)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.byID[id]), nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if strings.EqualFold(u.Email, email) {
			return clone(u), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) FindByLoginOrEmail(ctx context.Context, loginOrEmail string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if strings.EqualFold(u.Login, loginOrEmail) || strings.EqualFold(u.Email, loginOrEmail) {
			return clone(u), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if strings.EqualFold(existing.Email, u.Email) || strings.EqualFold(existing.Login, u.Login) {
			return autherr.ErrDuplicateCredential
		}
	}
	if _, ok := r.byID[u.ID]; ok {
		return autherr.ErrDuplicateCredential
	}
	r.byID[u.ID] = clone(u)
	return nil
}

func (r *MemoryRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return autherr.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (r *MemoryRepository) Exists(ctx context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok, nil
}

// MarkEmailConfirmed flips the confirmation flag; the in-memory credential store calls it when a
// confirmation succeeds. Returns false when the user is missing or already confirmed.
func (r *MemoryRepository) MarkEmailConfirmed(ctx context.Context, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok || u.IsEmailConfirmed {
		return false
	}
	u.IsEmailConfirmed = true
	return true
}

func clone(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
