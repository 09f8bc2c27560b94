// Package db opens the gorm connection. Postgres is used in production,
// SQLite for local development and tests.
package db

import (
	"errors"
	"fmt"
	"os"

	"helpinghands/api/internal/model"
	"helpinghands/api/pkg/util"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// New connects to dsn with the given driver and migrates the auth tables
func New(driver, dsn string) (*gorm.DB, error) {
	var dial gorm.Dialector

	switch driver {
	case DriverPostgres:
		if dsn == "" {
			return nil, errors.New("no postgres dsn provided")
		}

		dial = postgres.Open(dsn)
	case DriverSQLite, "":
		if dsn == "" {
			dsn = "database.db"
		}

		// If running in a docker container don't allow the sqlite file to be created.
		// The host should instead mount it using volumes
		if util.IsRunningInDocker() && dsn != ":memory:" {
			if _, err := os.Stat(dsn); errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("SQLite database file not mounted, please use docker volumes to mount it to /app/%s", dsn)
			}
		}

		dial = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dial, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database, %w", driver, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.User{}, &model.RefreshToken{}); err != nil {
		return fmt.Errorf("failed to automigrate tables, %w", err)
	}

	return nil
}

// NewInMemory returns a migrated SQLite database living only in memory.
// The pool is pinned to one connection, every new connection to ":memory:"
// would otherwise see its own empty database.
func NewInMemory() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database, %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}
