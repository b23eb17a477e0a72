package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"bloggers-platform/backend/internal/autherr"
	"bloggers-platform/backend/internal/db"
	"bloggers-platform/backend/internal/user/domain"
)

const uniqueViolation = "23505"

const selectUser = `SELECT id, email, login, password_hash, is_email_confirmed, created_at FROM users`

type PostgresRepository struct {
	pool db.DBTX
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository returns a user repository backed by pool. Writes join a transaction carried in ctx.
func NewPostgresRepository(pool db.DBTX) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByID returns the user for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, "get user by id", selectUser+` WHERE id = $1`, id)
}

// GetByEmail returns the user with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, "get user by email", selectUser+` WHERE lower(email) = lower($1)`, email)
}

// FindByLoginOrEmail returns the user whose login or email equals loginOrEmail, or nil.
func (r *PostgresRepository) FindByLoginOrEmail(ctx context.Context, loginOrEmail string) (*domain.User, error) {
	return r.getOne(ctx, "find user by login or email",
		selectUser+` WHERE lower(login) = lower($1) OR lower(email) = lower($1) LIMIT 1`, loginOrEmail)
}

// Create persists u. The user must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO users (id, email, login, password_hash, is_email_confirmed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Email, u.Login, u.PasswordHash, u.IsEmailConfirmed, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return autherr.ErrDuplicateCredential
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("user_id", u.ID).
			Wrap(err)
	}
	return nil
}

// UpdatePasswordHash replaces the stored password hash for id.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return oops.Code("USER_PASSWORD_UPDATE_FAILED").
			With("operation", "update password hash").
			With("user_id", id).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return autherr.ErrNotFound
	}
	return nil
}

// Exists reports whether a user with id exists.
func (r *PostgresRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, oops.Code("USER_EXISTS_FAILED").With("user_id", id).Wrap(err)
	}
	return exists, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, op, query string, arg string) (*domain.User, error) {
	var u domain.User
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, arg).
		Scan(&u.ID, &u.Email, &u.Login, &u.PasswordHash, &u.IsEmailConfirmed, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", op).Wrap(err)
	}
	return &u, nil
}
