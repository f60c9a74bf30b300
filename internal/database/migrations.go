package database

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

// SchemaVersion is the latest embedded migration: analysis_reports (1) and
// risk_feedback (2).
const SchemaVersion uint = 2

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationRunner applies the report and feedback schema.
type MigrationRunner struct {
	migrate  *migrate.Migrate
	embedded bool
	log      *logrus.Logger
}

// NewMigrationRunner opens databaseURL with migrations read from
// migrationsPath, or from the binary when migrationsPath is empty.
func NewMigrationRunner(databaseURL, migrationsPath string, logger *logrus.Logger) (*MigrationRunner, error) {
	runner := &MigrationRunner{embedded: migrationsPath == "", log: logger}

	var err error
	if runner.embedded {
		source, srcErr := iofs.New(migrationsFS, "migrations")
		if srcErr != nil {
			return nil, fmt.Errorf("opening embedded migrations: %w", srcErr)
		}
		runner.migrate, err = migrate.NewWithSourceInstance("iofs", source, databaseURL)
	} else {
		runner.migrate, err = migrate.New("file://"+migrationsPath, databaseURL)
	}
	if err != nil {
		return nil, fmt.Errorf("creating migration instance: %w", err)
	}
	return runner, nil
}

// ApplySchema brings the database at databaseURL up to date and releases the
// migration connection.
func ApplySchema(ctx context.Context, databaseURL, migrationsPath string, logger *logrus.Logger) error {
	runner, err := NewMigrationRunner(databaseURL, migrationsPath, logger)
	if err != nil {
		return err
	}
	upErr := runner.Up(ctx)
	closeErr := runner.Close()
	if upErr != nil {
		return upErr
	}
	return closeErr
}

// Up applies every pending migration. A database already at the latest
// version is not an error.
func (mr *MigrationRunner) Up(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := mr.migrate.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		mr.log.Debug("Schema already current")
	case err != nil:
		return fmt.Errorf("running migrations up: %w", err)
	}

	version, dirty, err := mr.Version()
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty; fix it manually before starting", version)
	}

	entry := mr.log.WithField("schema_version", version)
	if mr.embedded && version != SchemaVersion {
		entry.WithField("expected", SchemaVersion).Warn("Schema version differs from the embedded migrations")
		return nil
	}
	entry.Info("Database schema ready")
	return nil
}

// Down rolls back the most recent migration.
func (mr *MigrationRunner) Down(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := mr.migrate.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("rolling back migration: %w", err)
	}
	mr.log.Info("Rolled back one schema migration")
	return nil
}

// Version reports the applied migration and whether it failed half way.
func (mr *MigrationRunner) Version() (uint, bool, error) {
	return mr.migrate.Version()
}

// Close releases the source and database handles.
func (mr *MigrationRunner) Close() error {
	sourceErr, dbErr := mr.migrate.Close()
	return errors.Join(sourceErr, dbErr)
}
