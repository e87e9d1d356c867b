// Package db bootstraps the GORM connection: Postgres in production,
// SQLite for tests, following the teacher's internal/db package shape.
package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/opencast/servicereg/internal/domain"
	"github.com/opencast/servicereg/internal/pkg/logger"
)

// Open connects to Postgres at dsn. Record-not-found spam is silenced,
// matching the teacher's rationale: this core polls for dispatchable jobs
// on every tick, and a miss is the expected common case, not an error.
func Open(dsn string, baseLog *logger.Logger) (*gorm.DB, error) {
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	baseLog.Info("connecting to postgres")
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return conn, nil
}

// OpenSQLite opens an in-memory (or file-backed) SQLite database, used by
// repo tests in place of Postgres.
func OpenSQLite(path string, baseLog *logger.Logger) (*gorm.DB, error) {
	conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if baseLog != nil {
		baseLog.Info("opened sqlite database", "path", path)
	}
	return conn, nil
}

// AutoMigrate creates/updates the schema for every domain model this core
// owns.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&domain.HostRegistration{},
		&domain.ServiceRegistration{},
		&domain.Job{},
		&domain.JobEvent{},
	)
}
