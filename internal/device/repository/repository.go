package repository

import (
	"context"
	"time"

	"bloggers-platform/backend/internal/device/domain"
)

// Repository persists device sessions. Lookups return nil, nil when the device does not exist.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, deviceID string) (*domain.Session, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	// Touch records a rotation: sets last_active_at and last_token_id. A non-empty prevTokenID makes the
	// write conditional on the stored last_token_id still matching it. Returns false when the device is
	// gone or the condition fails.
	Touch(ctx context.Context, deviceID string, lastActiveAt time.Time, prevTokenID, tokenID string) (bool, error)
	// Delete removes the device. Returns false when there was nothing to delete.
	Delete(ctx context.Context, deviceID string) (bool, error)
	// DeleteAllExcept removes every device of userID other than keepDeviceID and returns how many were removed.
	DeleteAllExcept(ctx context.Context, userID, keepDeviceID string) (int64, error)
}
