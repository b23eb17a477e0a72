package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"bloggers-platform/backend/internal/audit"
	"bloggers-platform/backend/internal/autherr"
	"bloggers-platform/backend/internal/db"
	"bloggers-platform/backend/internal/mail"
	"bloggers-platform/backend/internal/security"
	userdomain "bloggers-platform/backend/internal/user/domain"
)

// Recovery resets forgotten passwords with an emailed single-use code.
type Recovery struct {
	users   UserStore
	creds   CredentialStore
	codes   *security.CodeIssuer
	hasher  *security.Hasher
	mailer  mail.Dispatcher
	tx      db.Transactor
	codeTTL time.Duration
	opts    options
}

// NewRecovery returns the recovery flow. codeTTL is the recovery code lifetime.
func NewRecovery(
	users UserStore,
	creds CredentialStore,
	codes *security.CodeIssuer,
	hasher *security.Hasher,
	mailer mail.Dispatcher,
	tx db.Transactor,
	codeTTL time.Duration,
	opts ...Option,
) *Recovery {
	if tx == nil {
		tx = db.NopTransactor{}
	}
	return &Recovery{
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

// RequestRecovery issues a recovery code for the principal with email and mails it. Any previous code
// stops working. Unknown emails succeed without doing anything.
func (r *Recovery) RequestRecovery(ctx context.Context, email string) (err error) {
	defer func() { record("password_recovery", err) }()

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
		return nil
	}
	code := r.codes.Issue(r.codeTTL)
	if err := r.creds.SetRecovery(ctx, user.ID, code.Value, code.ExpiresAt); err != nil {
		if errors.Is(err, autherr.ErrNotFound) {
			return nil
		}
		return err
	}
	if r.mailer != nil {
		if err := r.mailer.SendRecoveryCode(ctx, user.Email, code.Value); err != nil {
			log.Warn().Err(err).Msg("recovery: email not sent")
		}
	}
	r.opts.audit.LogEvent(ctx, user.ID, audit.ActionPasswordRecovery, audit.ResourceUser, "")
	return nil
}

// ApplyNewPassword sets newPassword for the principal owning code. The code is consumed together with the
// password update; an unknown, expired, superseded or already used code fails with ErrInvalidCode.
func (r *Recovery) ApplyNewPassword(ctx context.Context, newPassword, code string) (err error) {
	defer func() { record("password_reset", err) }()

	v := &autherr.ValidationError{}
	validatePassword(v, "newPassword", newPassword)
	if err := errOrNil(v); err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return autherr.ErrInvalidCode
	}
	rec, err := r.creds.FindByRecoveryCode(ctx, code)
	if err != nil {
		return err
	}
	if rec == nil || rec.Expired(r.opts.now()) {
		return autherr.ErrInvalidCode
	}
	hash, err := r.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	err = r.tx.InTransaction(ctx, func(ctx context.Context) error {
		consumed, err := r.creds.ConsumeRecovery(ctx, rec.PrincipalID, code)
		if err != nil {
			return err
		}
		if !consumed {
			return autherr.ErrInvalidCode
		}
		return r.users.UpdatePasswordHash(ctx, rec.PrincipalID, hash)
	})
	if err != nil {
		return err
	}

	r.opts.audit.LogEvent(ctx, rec.PrincipalID, audit.ActionPasswordReset, audit.ResourceUser, "")
	return nil
}
