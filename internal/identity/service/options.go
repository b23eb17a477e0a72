package service

import (
	"context"
	"time"

	"bloggers-platform/backend/internal/audit"
	credentialdomain "bloggers-platform/backend/internal/credential/domain"
	"bloggers-platform/backend/internal/telemetry"
	userdomain "bloggers-platform/backend/internal/user/domain"
)

// UserStore is the principal store the flows need. Lookups return nil, nil when nothing matches.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	FindByLoginOrEmail(ctx context.Context, loginOrEmail string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

// CredentialStore holds the confirmation and recovery codes.
type CredentialStore interface {
	SetConfirmation(ctx context.Context, principalID, code string, expiresAt time.Time) error
	FindByConfirmationCode(ctx context.Context, code string) (*credentialdomain.Confirmation, error)
	MarkConfirmed(ctx context.Context, principalID, code string) (bool, error)
	SetRecovery(ctx context.Context, principalID, code string, expiresAt time.Time) error
	FindByRecoveryCode(ctx context.Context, code string) (*credentialdomain.Recovery, error)
	ConsumeRecovery(ctx context.Context, principalID, code string) (bool, error)
}

// Option configures the registration, recovery and authentication flows.
type Option func(*options)

type options struct {
	audit audit.AuditLogger
	now   func() time.Time
}

func buildOptions(opts []Option) options {
	o := options{
		audit: audit.Nop{},
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithAuditLogger sets the audit sink. Defaults to discarding events.
func WithAuditLogger(a audit.AuditLogger) Option {
	return func(o *options) {
		if a != nil {
			o.audit = a
		}
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func record(operation string, err error) {
	telemetry.RecordOperation(operation, telemetry.OutcomeOf(err))
}
