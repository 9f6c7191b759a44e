package app

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrationUp applies every pending migration and returns the resulting schema version.
func MigrationUp(databaseDSN string, migrationPath string) (uint, error) {
	var version uint
	err := withMigrate(databaseDSN, migrationPath, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to run migration up: %w", err)
		}
		v, _, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}

// MigrationDown rolls back every migration. Used by relayctl only.
func MigrationDown(databaseDSN string, migrationPath string) error {
	return withMigrate(databaseDSN, migrationPath, func(m *migrate.Migrate) error {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to run migration down: %w", err)
		}
		return nil
	})
}

func withMigrate(databaseDSN, migrationPath string, fn func(*migrate.Migrate) error) error {
	m, err := migrate.New(migrationPath, databaseDSN)
	if err != nil {
		return fmt.Errorf("failed to create migrate: %w", err)
	}
	defer m.Close()
	return fn(m)
}
