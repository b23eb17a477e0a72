// Package domain holds the single-use credentials that guard email confirmation and password recovery.
package domain

import "time"

// Confirmation is the email-confirmation state of one principal. CodeHash is the SHA-256 of the code
// last issued; only that code can confirm. IsConfirmed only ever moves from false to true.
type Confirmation struct {
	PrincipalID string
	CodeHash    string
	ExpiresAt   time.Time
	IsConfirmed bool
}

// Expired reports whether the code can no longer be used at now.
func (c *Confirmation) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Recovery is the active password-recovery code of one principal. At most one exists per principal.
type Recovery struct {
	PrincipalID string
	CodeHash    string
	ExpiresAt   time.Time
}

// Expired reports whether the code can no longer be used at now.
func (r *Recovery) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
