package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/tipvault/relayer/src/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var migrationPath = utils.MigrationsURL()

// SetupTestDB connects to TEST_DB_URL and migrates it up. The schema is
// dropped again when the test finishes.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := RequireEnv(t, "TEST_DB_URL")

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	migration, err := migrate.New(migrationPath, dsn)
	if err != nil {
		t.Fatalf("failed to create migrate: %v", err)
	}
	if err := migration.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("failed to run migration up: %v", err)
	}

	t.Cleanup(func() {
		if err := migration.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			t.Logf("Warning: failed to run migration down: %v", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// SetupTestRedis connects to TEST_REDIS_URL and flushes the selected database on cleanup.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := RequireEnv(t, "TEST_REDIS_URL")

	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("Failed to parse TEST_REDIS_URL: %v", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("Failed to connect to test redis: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}
