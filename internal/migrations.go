package internal

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/dukerupert/vanir/migrations"
)

// RunMigrations brings the schema up to date from the embedded migration
// files. It runs at startup before the pgx pool opens, so a booting
// instance never serves against a stale schema. Goose records applied
// versions in its own table, so re-running on every boot is a no-op.
func RunMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
