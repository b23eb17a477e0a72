package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"bloggers-platform/backend/internal/device/domain"
)

// MemoryRepository keeps device sessions in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*domain.Session)}
}

func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.DeviceID] = &cp
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, deviceID string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[deviceID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sortByActivity(out)
	return out, nil
}

func (r *MemoryRepository) Touch(ctx context.Context, deviceID string, lastActiveAt time.Time, prevTokenID, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[deviceID]
	if !ok || (prevTokenID != "" && s.LastTokenID != prevTokenID) {
		return false, nil
	}
	s.LastActiveAt = lastActiveAt
	s.LastTokenID = tokenID
	return true, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, deviceID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[deviceID]; !ok {
		return false, nil
	}
	delete(r.sessions, deviceID)
	return true, nil
}

func (r *MemoryRepository) DeleteAllExcept(ctx context.Context, userID, keepDeviceID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.UserID == userID && id != keepDeviceID {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// sortByActivity orders newest activity first, device id as tie-break.
func sortByActivity(list []*domain.Session) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].LastActiveAt.Equal(list[j].LastActiveAt) {
			return list[i].DeviceID < list[j].DeviceID
		}
		return list[i].LastActiveAt.After(list[j].LastActiveAt)
	})
}
