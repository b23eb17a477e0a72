package engine

import (
	"context"

	devicedomain "bloggers-platform/backend/internal/device/domain"
)

// Evaluator decides device-session actions using OPA or other engines.
type Evaluator interface {
	// AllowRevoke reports whether requesterID may revoke the given device session.
	// Implementations deny when the decision cannot be made.
	AllowRevoke(ctx context.Context, requesterID string, session *devicedomain.Session) (bool, error)
}

// OwnerOnly allows a principal to revoke only its own devices. Used when no policy engine is configured.
type OwnerOnly struct{}

func (OwnerOnly) AllowRevoke(_ context.Context, requesterID string, session *devicedomain.Session) (bool, error) {
	return session != nil && requesterID != "" && session.UserID == requesterID, nil
}
