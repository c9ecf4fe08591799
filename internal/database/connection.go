package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config selects the database backend
type Config struct {
	// Driver is "sqlite3" or "postgres"
	Driver string
	// DSN is a file path or URI for SQLite and a connection string for PostgreSQL
	DSN string
}

// Connect establishes a connection to the database and bootstraps the schema
func Connect(cfg Config) (*sqlx.DB, error) {
	driver := cfg.Driver
	if driver == "" || driver == "sqlite" {
		driver = DriverSQLite
	}

	if driver == DriverSQLite && !strings.HasPrefix(cfg.DSN, "file:") && cfg.DSN != ":memory:" {
		// Create data directory if it doesn't exist
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create data directory")
		}
	}

	db, err := sqlx.Connect(driver, cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if driver == DriverSQLite {
		// Enable foreign keys
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to enable foreign keys")
		}
		db.SetMaxOpenConns(1) // SQLite doesn't support multiple writers
		db.SetMaxIdleConns(1)
	}

	if err := InitializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// InitializeSchema creates necessary tables if they don't exist
func InitializeSchema(db *sqlx.DB) error {
	stmts := sqliteSchema
	if isPostgres(db) {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "failed to initialize schema: %s", firstLine(stmt))
		}
	}
	return nil
}

func isPostgres(q sqlx.ExtContext) bool {
	return q.DriverName() == DriverPostgres
}

// withTx runs fn in a transaction, rolling back on error
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '('); i > 0 {
		return strings.TrimSpace(stmt[:i])
	}
	return stmt
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		is_teacher BOOLEAN NOT NULL DEFAULT false,
		notification_enabled BOOLEAN NOT NULL DEFAULT true,
		notification_hour INTEGER NOT NULL DEFAULT 9,
		daily_goal INTEGER NOT NULL DEFAULT 10,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS memorization_plans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		surah_id INTEGER NOT NULL,
		start_ayah INTEGER NOT NULL,
		end_ayah INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS review_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		plan_id INTEGER NOT NULL,
		surah_id INTEGER NOT NULL,
		ayah_id INTEGER NOT NULL,
		ease_factor REAL NOT NULL DEFAULT 2.5,
		interval_days INTEGER NOT NULL DEFAULT 1,
		repetitions INTEGER NOT NULL DEFAULT 0,
		confidence_score REAL NOT NULL DEFAULT 0,
		review_count INTEGER NOT NULL DEFAULT 0,
		due_at TIMESTAMP,
		last_reviewed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (plan_id) REFERENCES memorization_plans(id) ON DELETE CASCADE,
		UNIQUE(user_id, surah_id, ayah_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_review_items_due ON review_items (user_id, due_at)`,
	`CREATE TABLE IF NOT EXISTS review_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		confidence REAL NOT NULL,
		quality INTEGER NOT NULL,
		ease_before REAL NOT NULL,
		ease_after REAL NOT NULL,
		interval_after INTEGER NOT NULL,
		reviewed_at TIMESTAMP NOT NULL,
		FOREIGN KEY (item_id) REFERENCES review_items(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_review_logs_user ON review_logs (user_id, reviewed_at)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		is_teacher BOOLEAN NOT NULL DEFAULT false,
		notification_enabled BOOLEAN NOT NULL DEFAULT true,
		notification_hour INTEGER NOT NULL DEFAULT 9,
		daily_goal INTEGER NOT NULL DEFAULT 10,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS memorization_plans (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		surah_id INTEGER NOT NULL,
		start_ayah INTEGER NOT NULL,
		end_ayah INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS review_items (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		plan_id BIGINT NOT NULL REFERENCES memorization_plans(id) ON DELETE CASCADE,
		surah_id INTEGER NOT NULL,
		ayah_id INTEGER NOT NULL,
		ease_factor DOUBLE PRECISION NOT NULL DEFAULT 2.5,
		interval_days INTEGER NOT NULL DEFAULT 1,
		repetitions INTEGER NOT NULL DEFAULT 0,
		confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		review_count INTEGER NOT NULL DEFAULT 0,
		due_at TIMESTAMPTZ,
		last_reviewed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(user_id, surah_id, ayah_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_review_items_due ON review_items (user_id, due_at)`,
	`CREATE TABLE IF NOT EXISTS review_logs (
		id BIGSERIAL PRIMARY KEY,
		item_id BIGINT NOT NULL REFERENCES review_items(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		quality INTEGER NOT NULL,
		ease_before DOUBLE PRECISION NOT NULL,
		ease_after DOUBLE PRECISION NOT NULL,
		interval_after INTEGER NOT NULL,
		reviewed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_review_logs_user ON review_logs (user_id, reviewed_at)`,
}
