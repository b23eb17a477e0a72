package service

import (
	"context"
	"strings"

	"bloggers-platform/backend/internal/audit"
	"bloggers-platform/backend/internal/autherr"
	"bloggers-platform/backend/internal/security"
	userdomain "bloggers-platform/backend/internal/user/domain"
)

// Authenticator checks login credentials and resolves the principal behind an access token.
type Authenticator struct {
	users  UserStore
	hasher *security.Hasher
	opts   options
}

// NewAuthenticator returns an Authenticator over users.
func NewAuthenticator(users UserStore, hasher *security.Hasher, opts ...Option) *Authenticator {
	return &Authenticator{users: users, hasher: hasher, opts: buildOptions(opts)}
}

// Authenticate returns the principal matching loginOrEmail and password. Unknown principal, wrong password
// and unconfirmed email all fail with the same ErrInvalidCredentials.
func (a *Authenticator) Authenticate(ctx context.Context, loginOrEmail, password string) (_ *userdomain.User, err error) {
	defer func() { record("authenticate", err) }()

	loginOrEmail = strings.TrimSpace(loginOrEmail)
	v := &autherr.ValidationError{}
	if loginOrEmail == "" {
		v.Add("loginOrEmail", "loginOrEmail is required")
	}
	if password == "" {
		v.Add("password", "password is required")
	}
	if err := errOrNil(v); err != nil {
		return nil, err
	}
	user, err := a.users.FindByLoginOrEmail(ctx, loginOrEmail)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, autherr.ErrInvalidCredentials
	}
	if !a.hasher.Verify(password, user.PasswordHash) || !user.IsEmailConfirmed {
		a.opts.audit.LogEvent(ctx, user.ID, audit.ActionLoginFailure, audit.ResourceUser, "")
		return nil, autherr.ErrInvalidCredentials
	}
	return user, nil
}

// Me returns the principal behind a verified access token. A principal that no longer exists is treated
// as an invalid token.
func (a *Authenticator) Me(ctx context.Context, principalID string) (*userdomain.User, error) {
	user, err := a.users.GetByID(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, autherr.ErrInvalidToken
	}
	return user, nil
}
