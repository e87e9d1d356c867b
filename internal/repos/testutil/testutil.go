// Package testutil provides the sqlite-backed database fixture repo tests
// share, following the shape of the teacher's internal/data/repos/testutil
// package (DB/Tx/Logger helpers) with Postgres swapped for an in-memory
// SQLite connection so these tests need no external database.
package testutil

import (
	"fmt"
	"sync"
	"testing"

	"github.com/opencast/servicereg/internal/db"
	"github.com/opencast/servicereg/internal/pkg/logger"
	"gorm.io/gorm"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB opens a fresh in-memory SQLite database, migrated with every model
// this core owns. Unlike the teacher's shared-connection pattern, each
// test gets its own database: SQLite's in-memory mode is cheap enough that
// there is no need to share one connection and roll back around it.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", tb.Name())
	conn, err := db.OpenSQLite(dsn, Logger(tb))
	if err != nil {
		tb.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(conn); err != nil {
		tb.Fatalf("failed to migrate sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err == nil {
		tb.Cleanup(func() { _ = sqlDB.Close() })
	}
	return conn
}
