package services

import (
	"testing"

	"github.com/gov-dx-sandbox/audit-ledger/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SetupSQLiteTestDB creates an in-memory SQLite database for testing.
// A single shared connection is used so concurrent test goroutines all
// see the same in-memory database, and TranslateError is enabled so the
// store's duplicate-key detection behaves as it does against PostgreSQL.
func SetupSQLiteTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get underlying sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.AuditRecord{}); err != nil {
		t.Fatalf("Failed to migrate audit_records table: %v", err)
	}

	t.Cleanup(func() {
		CleanupTestData(t, db)
		sqlDB.Close()
	})

	return db
}

// CleanupTestData removes all test data from the database.
func CleanupTestData(t *testing.T, db *gorm.DB) {
	if db == nil {
		return
	}
	if err := db.Exec("DELETE FROM audit_records").Error; err != nil {
		t.Logf("Warning: could not cleanup audit_records: %v", err)
	}
}
