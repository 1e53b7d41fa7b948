// Package migrate applies the embedded schema migrations. The schema carries
// the audit chain and the ciphertext tables, so rollouts run migrations as a
// separate step (cmd/migrate) before the server starts; nothing at server
// startup mutates the schema.
package migrate

import (
	"errors"
	"fmt"

	"ledgerline/backend/internal/db"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Direction selects which way Run moves the schema.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ErrNoChange reports that the schema is already at the requested version.
// Callers treat it as success.
var ErrNoChange = migrate.ErrNoChange

// Run moves the schema in the given direction using the embedded SQL files.
// Returns ErrNoChange when there is nothing to apply.
func Run(dsn string, direction Direction) error {
	if dsn == "" {
		return errors.New("no database DSN configured; set DATABASE_URL")
	}
	if direction != Up && direction != Down {
		return fmt.Errorf("unknown migration direction %q", direction)
	}

	src, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("open migration target: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if direction == Up {
		return m.Up()
	}
	return m.Down()
}
