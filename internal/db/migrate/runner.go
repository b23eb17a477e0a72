// Package migrate applies the embedded SQL schema with golang-migrate.
package migrate

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"bloggers-platform/backend/internal/db"
)

// ErrNoChange is returned when there is nothing to apply in the requested direction.
var ErrNoChange = migrate.ErrNoChange

// Direction values accepted by Run.
const (
	Up   = "up"
	Down = "down"
)

// Run migrates the database at dsn. steps == 0 means all the way in the given direction;
// otherwise at most steps migrations are applied or reverted.
func Run(dsn, direction string, steps int) error {
	if direction != Up && direction != Down {
		return fmt.Errorf("direction must be %q or %q, got %q", Up, Down, direction)
	}
	if steps < 0 {
		return fmt.Errorf("steps must be >= 0, got %d", steps)
	}
	m, err := newMigrate(dsn)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	switch {
	case steps > 0 && direction == Down:
		err = m.Steps(-steps)
	case steps > 0:
		err = m.Steps(steps)
	case direction == Down:
		err = m.Down()
	default:
		err = m.Up()
	}
	return err
}

// Version reports the applied schema version and whether the last migration left it dirty.
func Version(dsn string) (uint, bool, error) {
	m, err := newMigrate(dsn)
	if err != nil {
		return 0, false, err
	}
	defer func() { _, _ = m.Close() }()
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func newMigrate(dsn string) (*migrate.Migrate, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	src, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, pgx5URL(dsn))
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return m, nil
}

// pgx5URL rewrites a postgres:// DSN to the pgx5:// scheme the pgx/v5 migrate driver registers.
func pgx5URL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if len(dsn) > len(prefix) && dsn[:len(prefix)] == prefix {
			return "pgx5://" + dsn[len(prefix):]
		}
	}
	return dsn
}
