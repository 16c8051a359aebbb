package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gov-dx-sandbox/audit-ledger/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DatabaseType represents the type of database to use
type DatabaseType string

const (
	DatabaseTypeSQLite   DatabaseType = "sqlite"
	DatabaseTypePostgres DatabaseType = "postgres"
)

// Config holds database connection configuration
type Config struct {
	// Database type (sqlite or postgres)
	Type DatabaseType

	// SQLite configuration
	DatabasePath string // Path to SQLite database file

	// PostgreSQL configuration
	Host     string
	Port     string
	Username string
	Password string
	Database string
	SSLMode  string

	// Connection pool settings (applies to both database types)
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// NewDatabaseConfig creates a new database configuration from environment
// variables. Supports both SQLite (default) and PostgreSQL.
// Configuration priority:
//  1. If DB_TYPE=postgres → PostgreSQL (DB_HOST, DB_PASSWORD, etc. required)
//  2. If DB_TYPE=sqlite OR DB_PATH is set → file-based SQLite (default: ./data/ledger.db)
//  3. If no database configuration at all → in-memory SQLite (:memory:)
func NewDatabaseConfig() *Config {
	dbTypeStr := strings.ToLower(config.GetEnvOrDefault("DB_TYPE", ""))
	var dbType DatabaseType

	dbTypeSet := os.Getenv("DB_TYPE") != ""
	dbPathSet := os.Getenv("DB_PATH") != ""
	hasSQLiteConfig := dbPathSet || (dbTypeSet && dbTypeStr != "postgres" && dbTypeStr != "postgresql")

	switch dbTypeStr {
	case "postgres", "postgresql":
		dbType = DatabaseTypePostgres
	case "sqlite", "":
		dbType = DatabaseTypeSQLite
	default:
		slog.Warn("Unknown DB_TYPE, defaulting to sqlite", "db_type", dbTypeStr)
		dbType = DatabaseTypeSQLite
	}

	cfg := &Config{Type: dbType}

	if dbType == DatabaseTypeSQLite {
		// SQLite best practice: MaxOpenConns=1 serializes database access
		// through a single connection, preventing "database is locked"
		// errors under concurrent writes even with WAL enabled.
		cfg.MaxOpenConns = parseIntOrDefault("DB_MAX_OPEN_CONNS", 1)
		cfg.MaxIdleConns = parseIntOrDefault("DB_MAX_IDLE_CONNS", 1)

		if !hasSQLiteConfig {
			cfg.DatabasePath = ":memory:"
			slog.Info("No database configuration found, using in-memory SQLite")
		} else {
			cfg.DatabasePath = config.GetEnvOrDefault("DB_PATH", "./data/ledger.db")
		}

		if cfg.DatabasePath != ":memory:" {
			dbDir := filepath.Dir(cfg.DatabasePath)
			if err := os.MkdirAll(dbDir, 0o755); err != nil {
				slog.Warn("Failed to create database directory", "path", dbDir, "error", err)
			}
		}

		slog.Info("Database configuration (SQLite)",
			"database_path", cfg.DatabasePath,
			"max_open_conns", cfg.MaxOpenConns,
			"max_idle_conns", cfg.MaxIdleConns,
		)
	} else {
		cfg.Host = config.GetEnvOrDefault("DB_HOST", "localhost")
		cfg.Port = config.GetEnvOrDefault("DB_PORT", "5432")
		cfg.Username = config.GetEnvOrDefault("DB_USERNAME", "postgres")
		cfg.Password = config.GetEnvOrDefault("DB_PASSWORD", "")
		cfg.Database = config.GetEnvOrDefault("DB_NAME", "audit_ledger")
		cfg.SSLMode = config.GetEnvOrDefault("DB_SSLMODE", "disable")

		cfg.MaxOpenConns = parseIntOrDefault("DB_MAX_OPEN_CONNS", 25)
		cfg.MaxIdleConns = parseIntOrDefault("DB_MAX_IDLE_CONNS", 5)

		slog.Info("Database configuration (PostgreSQL)",
			"host", cfg.Host,
			"port", cfg.Port,
			"database", cfg.Database,
			"username", cfg.Username,
			"sslmode", cfg.SSLMode,
			"max_open_conns", cfg.MaxOpenConns,
			"max_idle_conns", cfg.MaxIdleConns,
		)
	}

	cfg.ConnMaxLifetime = parseDurationOrDefault("DB_CONN_MAX_LIFETIME", time.Hour)
	cfg.ConnMaxIdleTime = parseDurationOrDefault("DB_CONN_MAX_IDLE_TIME", 15*time.Minute)
	cfg.ConnectTimeout = parseDurationOrDefault("DB_CONNECT_TIMEOUT", 10*time.Second)

	return cfg
}

// ConnectGormDB establishes a GORM connection to the database (SQLite or
// PostgreSQL). TranslateError is enabled so unique-constraint violations
// surface as gorm.ErrDuplicatedKey on both drivers; AppendIfTail relies
// on that to detect lost tail races.
func ConnectGormDB(cfg *Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{TranslateError: true}

	var gormDB *gorm.DB
	var err error

	if cfg.Type == DatabaseTypeSQLite {
		slog.Info("Attempting GORM SQLite database connection", "path", cfg.DatabasePath)

		gormDB, err = gorm.Open(sqlite.Open(cfg.DatabasePath), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to open GORM SQLite database connection: %w", err)
		}
	} else {
		// Use net/url to properly encode credentials (handles special
		// characters in passwords)
		dsnURL := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(cfg.Username, cfg.Password),
			Host:   fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
			Path:   cfg.Database,
		}
		q := dsnURL.Query()
		q.Set("sslmode", cfg.SSLMode)
		dsnURL.RawQuery = q.Encode()

		slog.Info("Attempting GORM PostgreSQL database connection",
			"host", cfg.Host,
			"port", cfg.Port,
			"database", cfg.Database)

		gormDB, err = gorm.Open(postgres.Open(dsnURL.String()), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to open GORM PostgreSQL database connection: %w", err)
		}
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connection established", "type", string(cfg.Type))
	return gormDB, nil
}

// parseIntOrDefault parses an integer from an environment variable or
// returns the default
func parseIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// parseDurationOrDefault parses a duration from an environment variable
// or returns the default
func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
