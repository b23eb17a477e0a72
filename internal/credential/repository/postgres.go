package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"bloggers-platform/backend/internal/autherr"
	"bloggers-platform/backend/internal/credential/domain"
	"bloggers-platform/backend/internal/db"
	"bloggers-platform/backend/internal/security"
)

const foreignKeyViolation = "23503"

type PostgresRepository struct {
	pool db.DBTX
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository returns a credential store backed by pool. Calls join a transaction carried in ctx.
func NewPostgresRepository(pool db.DBTX) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) SetConfirmation(ctx context.Context, principalID, code string, expiresAt time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO email_confirmations (user_id, code_hash, expires_at, is_confirmed)
		VALUES ($1, $2, $3, FALSE)
		ON CONFLICT (user_id) DO UPDATE
		SET code_hash = EXCLUDED.code_hash, expires_at = EXCLUDED.expires_at
		WHERE NOT email_confirmations.is_confirmed
	`, principalID, security.HashSecret(code), expiresAt)
	if err != nil {
		if isPgCode(err, foreignKeyViolation) {
			return autherr.ErrNotFound
		}
		return oops.Code("CONFIRMATION_SET_FAILED").
			With("operation", "upsert email_confirmation").
			With("user_id", principalID).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return autherr.ErrAlreadyConfirmed
	}
	return nil
}

func (r *PostgresRepository) FindByConfirmationCode(ctx context.Context, code string) (*domain.Confirmation, error) {
	var c domain.Confirmation
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT user_id, code_hash, expires_at, is_confirmed
		FROM email_confirmations
		WHERE code_hash = $1
	`, security.HashSecret(code)).Scan(&c.PrincipalID, &c.CodeHash, &c.ExpiresAt, &c.IsConfirmed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("CONFIRMATION_QUERY_FAILED").With("operation", "find email_confirmation by code").Wrap(err)
	}
	return &c, nil
}

// MarkConfirmed flips the credential row and the user's is_email_confirmed in one statement.
func (r *PostgresRepository) MarkConfirmed(ctx context.Context, principalID, code string) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		WITH flipped AS (
			UPDATE email_confirmations
			SET is_confirmed = TRUE
			WHERE user_id = $1 AND code_hash = $2 AND NOT is_confirmed
			RETURNING user_id
		)
		UPDATE users SET is_email_confirmed = TRUE
		FROM flipped
		WHERE users.id = flipped.user_id
	`, principalID, security.HashSecret(code))
	if err != nil {
		return false, oops.Code("CONFIRMATION_MARK_FAILED").
			With("operation", "mark email confirmed").
			With("user_id", principalID).
			Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) SetRecovery(ctx context.Context, principalID, code string, expiresAt time.Time) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO password_recoveries (user_id, code_hash, expires_at, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE
		SET code_hash = EXCLUDED.code_hash, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at
	`, principalID, security.HashSecret(code), expiresAt)
	if err != nil {
		if isPgCode(err, foreignKeyViolation) {
			return autherr.ErrNotFound
		}
		return oops.Code("RECOVERY_SET_FAILED").
			With("operation", "upsert password_recovery").
			With("user_id", principalID).
			Wrap(err)
	}
	return nil
}

func (r *PostgresRepository) FindByRecoveryCode(ctx context.Context, code string) (*domain.Recovery, error) {
	var rec domain.Recovery
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT user_id, code_hash, expires_at
		FROM password_recoveries
		WHERE code_hash = $1
	`, security.HashSecret(code)).Scan(&rec.PrincipalID, &rec.CodeHash, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("RECOVERY_QUERY_FAILED").With("operation", "find password_recovery by code").Wrap(err)
	}
	return &rec, nil
}

func (r *PostgresRepository) ConsumeRecovery(ctx context.Context, principalID, code string) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		DELETE FROM password_recoveries WHERE user_id = $1 AND code_hash = $2
	`, principalID, security.HashSecret(code))
	if err != nil {
		return false, oops.Code("RECOVERY_CONSUME_FAILED").
			With("operation", "delete password_recovery").
			With("user_id", principalID).
			Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
