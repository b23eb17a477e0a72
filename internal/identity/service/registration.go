package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"bloggers-platform/backend/internal/audit"
	"bloggers-platform/backend/internal/autherr"
	"bloggers-platform/backend/internal/db"
	"bloggers-platform/backend/internal/mail"
	"bloggers-platform/backend/internal/security"
	userdomain "bloggers-platform/backend/internal/user/domain"
)

// Registration creates principals and drives them from unconfirmed to confirmed with an emailed code.
type Registration struct {
	users   UserStore
	creds   CredentialStore
	codes   *security.CodeIssuer
	hasher  *security.Hasher
	mailer  mail.Dispatcher
	tx      db.Transactor
	codeTTL time.Duration
	opts    options
}

// NewRegistration returns the registration flow. codeTTL is the confirmation code lifetime.
func NewRegistration(
	users UserStore,
	creds CredentialStore,
	codes *security.CodeIssuer,
	hasher *security.Hasher,
	mailer mail.Dispatcher,
	tx db.Transactor,
	codeTTL time.Duration,
	opts ...Option,
) *Registration {
	if tx == nil {
		tx = db.NopTransactor{}
	}
	return &Registration{
		users:   users,
		creds:   creds,
		codes:   codes,
		hasher:  hasher,
		mailer:  mailer,
		tx:      tx,
		codeTTL: codeTTL,
		opts:    buildOptions(opts),
	}
}

// Register creates an unconfirmed principal and emails it a confirmation code.
// A taken email or login fails with ErrDuplicateCredential carrying the offending field.
func (r *Registration) Register(ctx context.Context, email, login, password string) (err error) {
	defer func() { record("register", err) }()

	v := &autherr.ValidationError{}
	validateLogin(v, login)
	validatePassword(v, "password", password)
	validateEmail(v, email)
	if err := errOrNil(v); err != nil {
		return err
	}
	email = userdomain.NormalizeEmail(email)
	login = strings.TrimSpace(login)

	if err := r.checkAvailable(ctx, email, login); err != nil {
		return err
	}
	hash, err := r.hasher.Hash(password)
	if err != nil {
		return err
	}
	user := &userdomain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Login:        login,
		PasswordHash: hash,
		CreatedAt:    r.opts.now(),
	}
	code := r.codes.Issue(r.codeTTL)
	err = r.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := r.users.Create(ctx, user); err != nil {
			return err
		}
		return r.creds.SetConfirmation(ctx, user.ID, code.Value, code.ExpiresAt)
	})
	if errors.Is(err, autherr.ErrDuplicateCredential) {
		// lost a race with a concurrent registration
		return duplicate("email", "email or login already registered")
	}
	if err != nil {
		return err
	}

	r.send(ctx, user.Email, code.Value)
	r.opts.audit.LogEvent(ctx, user.ID, audit.ActionRegister, audit.ResourceUser, "")
	return nil
}

// Confirm flips the principal owning code to confirmed. Unknown, expired or superseded codes fail with
// ErrInvalidCode; a code whose principal is confirmed fails with ErrAlreadyConfirmed; losing the flip to a
// concurrent confirmation fails with ErrStateConflict.
func (r *Registration) Confirm(ctx context.Context, code string) (err error) {
	defer func() { record("confirm", err) }()

	if strings.TrimSpace(code) == "" {
		return autherr.ErrInvalidCode
	}
	c, err := r.creds.FindByConfirmationCode(ctx, code)
	if err != nil {
		return err
	}
	if c == nil {
		return autherr.ErrInvalidCode
	}
	if c.IsConfirmed {
		return autherr.ErrAlreadyConfirmed
	}
	if c.Expired(r.opts.now()) {
		return autherr.ErrInvalidCode
	}
	ok, err := r.creds.MarkConfirmed(ctx, c.PrincipalID, code)
	if err != nil {
		return err
	}
	if !ok {
		// Either a resend replaced the code or another confirm got there first.
		current, err := r.creds.FindByConfirmationCode(ctx, code)
		if err != nil {
			return err
		}
		if current == nil {
			return autherr.ErrInvalidCode
		}
		return autherr.ErrStateConflict
	}

	r.opts.audit.LogEvent(ctx, c.PrincipalID, audit.ActionConfirm, audit.ResourceUser, "")
	return nil
}

// Resend replaces the principal's confirmation code and emails the new one. Only the newest code confirms.
func (r *Registration) Resend(ctx context.Context, email string) (err error) {
	defer func() { record("confirmation_resend", err) }()

	v := &autherr.ValidationError{}
	validateEmail(v, email)
	if err := errOrNil(v); err != nil {
		return err
	}
	user, err := r.users.GetByEmail(ctx, userdomain.NormalizeEmail(email))
	if err != nil {
		return err
	}
	if user == nil {
		return autherr.ErrNotFound
	}
	if user.IsEmailConfirmed {
		return autherr.ErrAlreadyConfirmed
	}
	code := r.codes.Issue(r.codeTTL)
	if err := r.creds.SetConfirmation(ctx, user.ID, code.Value, code.ExpiresAt); err != nil {
		return err
	}

	r.send(ctx, user.Email, code.Value)
	r.opts.audit.LogEvent(ctx, user.ID, audit.ActionResendConfirmation, audit.ResourceUser, "")
	return nil
}

func (r *Registration) checkAvailable(ctx context.Context, email, login string) error {
	byEmail, err := r.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if byEmail != nil {
		return duplicate("email", "email already exists")
	}
	byLogin, err := r.users.FindByLoginOrEmail(ctx, login)
	if err != nil {
		return err
	}
	if byLogin != nil && strings.EqualFold(byLogin.Login, login) {
		return duplicate("login", "login already exists")
	}
	return nil
}

// send dispatches the confirmation email. State is already persisted, so a failed send is only logged;
// the principal can ask for a resend.
func (r *Registration) send(ctx context.Context, email, code string) {
	if r.mailer == nil {
		return
	}
	if err := r.mailer.SendConfirmationCode(ctx, email, code); err != nil {
		log.Warn().Err(err).Msg("registration: confirmation email not sent")
	}
}

func duplicate(field, message string) error {
	return fmt.Errorf("%w: %w", autherr.ErrDuplicateCredential, autherr.NewValidationError(field, message))
}
