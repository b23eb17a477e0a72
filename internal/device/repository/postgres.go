package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"bloggers-platform/backend/internal/db"
	"bloggers-platform/backend/internal/device/domain"
)

const sessionColumns = `device_id, user_id, ip, title, issued_at, last_active_at, window_seconds, last_token_id`

type PostgresRepository struct {
	pool db.DBTX
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository returns a device session store backed by pool.
func NewPostgresRepository(pool db.DBTX) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create persists the session. The session must have DeviceID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO device_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.DeviceID, s.UserID, s.IP, s.Title, s.IssuedAt, s.LastActiveAt, s.WindowSeconds, s.LastTokenID)
	if err != nil {
		return oops.Code("DEVICE_SESSION_CREATE_FAILED").
			With("operation", "insert device_session").
			With("device_id", s.DeviceID).
			Wrap(err)
	}
	return nil
}

// GetByID returns the session for deviceID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, deviceID string) (*domain.Session, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+sessionColumns+` FROM device_sessions WHERE device_id = $1`, deviceID)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("DEVICE_SESSION_QUERY_FAILED").With("device_id", deviceID).Wrap(err)
	}
	return s, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+sessionColumns+`
		FROM device_sessions
		WHERE user_id = $1
		ORDER BY last_active_at DESC, device_id
	`, userID)
	if err != nil {
		return nil, oops.Code("DEVICE_SESSION_LIST_FAILED").With("user_id", userID).Wrap(err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, oops.Code("DEVICE_SESSION_SCAN_FAILED").With("user_id", userID).Wrap(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("DEVICE_SESSION_LIST_FAILED").With("user_id", userID).Wrap(err)
	}
	return out, nil
}

func (r *PostgresRepository) Touch(ctx context.Context, deviceID string, lastActiveAt time.Time, prevTokenID, tokenID string) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE device_sessions
		SET last_active_at = $2, last_token_id = $3
		WHERE device_id = $1 AND ($4::text = '' OR last_token_id = $4::text)
	`, deviceID, lastActiveAt, tokenID, prevTokenID)
	if err != nil {
		return false, oops.Code("DEVICE_SESSION_TOUCH_FAILED").With("device_id", deviceID).Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, deviceID string) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM device_sessions WHERE device_id = $1`, deviceID)
	if err != nil {
		return false, oops.Code("DEVICE_SESSION_DELETE_FAILED").With("device_id", deviceID).Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) DeleteAllExcept(ctx context.Context, userID, keepDeviceID string) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		DELETE FROM device_sessions WHERE user_id = $1 AND device_id <> $2
	`, userID, keepDeviceID)
	if err != nil {
		return 0, oops.Code("DEVICE_SESSION_DELETE_FAILED").
			With("user_id", userID).
			With("keep_device_id", keepDeviceID).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(&s.DeviceID, &s.UserID, &s.IP, &s.Title, &s.IssuedAt, &s.LastActiveAt, &s.WindowSeconds, &s.LastTokenID); err != nil {
		return nil, err
	}
	s.IssuedAt = s.IssuedAt.UTC()
	s.LastActiveAt = s.LastActiveAt.UTC()
	return &s, nil
}
