package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is used when no cost is configured.
const DefaultBcryptCost = 12

// Hasher hashes and verifies passwords with bcrypt (salted and deliberately slow).
// Plaintext passwords must never be logged or persisted.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with cost clamped to bcrypt's 4..31 range; 0 means DefaultBcryptCost.
func NewHasher(cost int) *Hasher {
	switch {
	case cost <= 0:
		cost = DefaultBcryptCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash returns the bcrypt digest of password.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("hash: empty password")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare returns nil when password matches digest, bcrypt.ErrMismatchedHashAndPassword when it
// does not, and another error for a malformed digest.
func (h *Hasher) Compare(digest, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
}

// Verify reports whether password matches digest.
func (h *Hasher) Verify(password, digest string) bool {
	return h.Compare(digest, password) == nil
}
