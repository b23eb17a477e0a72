package security

import (
	"time"

	"github.com/google/uuid"
)

// Code is a single-use secret with its expiry.
type Code struct {
	Value     string
	ExpiresAt time.Time
}

// Expired reports whether the code is no longer valid at now.
func (c Code) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// CodeIssuer mints confirmation and recovery codes. Values are random (v4) UUIDs, i.e. 122 random bits.
type CodeIssuer struct {
	now func() time.Time
}

// CodeIssuerOption configures a CodeIssuer.
type CodeIssuerOption func(*CodeIssuer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) CodeIssuerOption {
	return func(i *CodeIssuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewCodeIssuer returns a CodeIssuer using the wall clock unless overridden.
func NewCodeIssuer(opts ...CodeIssuerOption) *CodeIssuer {
	i := &CodeIssuer{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue returns a fresh code valid for ttl.
func (i *CodeIssuer) Issue(ttl time.Duration) Code {
	return Code{
		Value:     uuid.NewString(),
		ExpiresAt: i.now().Add(ttl),
	}
}
