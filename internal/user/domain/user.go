package domain

import (
	"errors"
	"strings"
	"time"
)

// User is the principal: an account that can register, confirm its email, log in and reset its password.
type User struct {
	ID               string
	Email            string
	Login            string
	PasswordHash     string
	IsEmailConfirmed bool
	CreatedAt        time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Login == "" {
		return errors.New("login is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}

// NormalizeEmail lowercases and trims an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
