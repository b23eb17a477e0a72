// Package repository persists confirmation and recovery credentials. Codes are passed in raw and
// stored hashed; lookups return nil, nil when no live record matches.
package repository

import (
	"context"
	"time"

	"bloggers-platform/backend/internal/credential/domain"
)

// Repository is the credential store.
type Repository interface {
	// SetConfirmation upserts the principal's confirmation code. Fails with autherr.ErrNotFound when the
	// principal does not exist and with autherr.ErrAlreadyConfirmed once the principal is confirmed.
	SetConfirmation(ctx context.Context, principalID, code string, expiresAt time.Time) error
	FindByConfirmationCode(ctx context.Context, code string) (*domain.Confirmation, error)
	// MarkConfirmed flips the confirmation flag when it is still false and code is still the current code.
	// It reports false when the principal is missing, already confirmed, or the code was superseded.
	MarkConfirmed(ctx context.Context, principalID, code string) (bool, error)

	// SetRecovery replaces any previous recovery code of the principal.
	SetRecovery(ctx context.Context, principalID, code string, expiresAt time.Time) error
	FindByRecoveryCode(ctx context.Context, code string) (*domain.Recovery, error)
	// ConsumeRecovery deletes the principal's recovery record if code is still its current code.
	// It reports false when there was nothing to consume.
	ConsumeRecovery(ctx context.Context, principalID, code string) (bool, error)
}
