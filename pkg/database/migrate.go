package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// gooseRun is swapped in tests.
var gooseRun = goose.RunContext

func init() {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		panic(err)
	}
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, db *sql.DB) error {
	return RunMigrations(ctx, db, "up")
}

// RunMigrations executes a goose command (up, down, status, version, redo, reset,
// up-to, down-to) against the embedded migrations.
func RunMigrations(ctx context.Context, db *sql.DB, command string, args ...string) error {
	if command == "" {
		return fmt.Errorf("migration command is required")
	}
	if err := gooseRun(ctx, command, db, migrationsDir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}
