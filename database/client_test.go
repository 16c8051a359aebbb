package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabaseConfig(t *testing.T) {
	t.Run("Defaults to in-memory SQLite", func(t *testing.T) {
		t.Setenv("DB_TYPE", "")
		t.Setenv("DB_PATH", "")

		cfg := NewDatabaseConfig()
		require.NotNil(t, cfg)
		assert.Equal(t, DatabaseTypeSQLite, cfg.Type)
		assert.Equal(t, ":memory:", cfg.DatabasePath)
		assert.Equal(t, 1, cfg.MaxOpenConns) // SQLite: single connection prevents lock contention
		assert.Equal(t, 1, cfg.MaxIdleConns)
		assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
		assert.Equal(t, 15*time.Minute, cfg.ConnMaxIdleTime)
	})

	t.Run("File-based SQLite via DB_PATH", func(t *testing.T) {
		testPath := filepath.Join(t.TempDir(), "ledger.db")
		t.Setenv("DB_PATH", testPath)
		t.Setenv("DB_MAX_OPEN_CONNS", "50")
		t.Setenv("DB_MAX_IDLE_CONNS", "10")

		cfg := NewDatabaseConfig()
		assert.Equal(t, DatabaseTypeSQLite, cfg.Type)
		assert.Equal(t, testPath, cfg.DatabasePath)
		assert.Equal(t, 50, cfg.MaxOpenConns)
		assert.Equal(t, 10, cfg.MaxIdleConns)
	})

	t.Run("Postgres via DB_TYPE", func(t *testing.T) {
		t.Setenv("DB_TYPE", "postgres")
		t.Setenv("DB_HOST", "db.internal")
		t.Setenv("DB_NAME", "ledger")

		cfg := NewDatabaseConfig()
		assert.Equal(t, DatabaseTypePostgres, cfg.Type)
		assert.Equal(t, "db.internal", cfg.Host)
		assert.Equal(t, "ledger", cfg.Database)
		assert.Equal(t, 25, cfg.MaxOpenConns)
	})

	t.Run("Unknown DB_TYPE falls back to sqlite", func(t *testing.T) {
		t.Setenv("DB_TYPE", "oracle")

		cfg := NewDatabaseConfig()
		assert.Equal(t, DatabaseTypeSQLite, cfg.Type)
	})
}

func TestParseIntOrDefault(t *testing.T) {
	t.Run("Returns parsed int when valid", func(t *testing.T) {
		t.Setenv("TEST_INT_VAR", "42")
		assert.Equal(t, 42, parseIntOrDefault("TEST_INT_VAR", 10))
	})

	t.Run("Returns default when not set", func(t *testing.T) {
		assert.Equal(t, 10, parseIntOrDefault("TEST_INT_VAR_NONEXISTENT", 10))
	})

	t.Run("Returns default when invalid", func(t *testing.T) {
		t.Setenv("TEST_INT_VAR", "not-a-number")
		assert.Equal(t, 10, parseIntOrDefault("TEST_INT_VAR", 10))
	})
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Run("Returns parsed duration when valid", func(t *testing.T) {
		t.Setenv("TEST_DURATION_VAR", "2h")
		assert.Equal(t, 2*time.Hour, parseDurationOrDefault("TEST_DURATION_VAR", time.Hour))
	})

	t.Run("Returns default when not set", func(t *testing.T) {
		assert.Equal(t, 30*time.Minute, parseDurationOrDefault("TEST_DURATION_VAR_NONEXISTENT", 30*time.Minute))
	})

	t.Run("Returns default when invalid", func(t *testing.T) {
		t.Setenv("TEST_DURATION_VAR", "not-a-duration")
		assert.Equal(t, 15*time.Minute, parseDurationOrDefault("TEST_DURATION_VAR", 15*time.Minute))
	})
}

func TestConnectGormDB_SQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	cfg := &Config{
		Type:            DatabaseTypeSQLite,
		DatabasePath:    dbPath,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	}

	db, err := ConnectGormDB(cfg)
	require.NoError(t, err)
	require.NotNil(t, db)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.NoError(t, sqlDB.Ping())
	assert.NoError(t, sqlDB.Close())
}
