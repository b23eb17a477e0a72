package repository

import (
	"context"
	"database/sql"

	"github.com/samber/oops"

	"bloggers-platform/backend/internal/audit/domain"
	"bloggers-platform/backend/internal/db"
)

type PostgresRepository struct {
	pool db.DBTX
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository returns an audit log repository backed by pool.
func NewPostgresRepository(pool db.DBTX) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create persists the entry. The entry must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, user_id, action, resource, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, nullString(a.UserID), a.Action, a.Resource, a.IP, nullString(a.Metadata), a.CreatedAt)
	if err != nil {
		return oops.Code("AUDIT_CREATE_FAILED").
			With("operation", "insert audit_log").
			With("action", a.Action).
			Wrap(err)
	}
	return nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, action, resource, ip, metadata, created_at
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, oops.Code("AUDIT_LIST_FAILED").With("user_id", userID).Wrap(err)
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a        domain.AuditLog
			uid      sql.NullString
			metadata sql.NullString
		)
		if err := rows.Scan(&a.ID, &uid, &a.Action, &a.Resource, &a.IP, &metadata, &a.CreatedAt); err != nil {
			return nil, oops.Code("AUDIT_SCAN_FAILED").Wrap(err)
		}
		a.UserID = uid.String
		a.Metadata = metadata.String
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("AUDIT_LIST_FAILED").With("user_id", userID).Wrap(err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
