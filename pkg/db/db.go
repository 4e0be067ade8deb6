package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver for database/sql
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // pure Go SQLite driver, registered as "sqlite"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know about by default.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

const schema = `
CREATE TABLE IF NOT EXISTS kv_records (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at BIGINT NOT NULL
);`

// Open connects to the database for the given driver ("sqlite" or "postgres"),
// verifies the connection and makes sure the kv_records table exists.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	conn, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		log.Errorf("Failed to connect to %s database: %v", driver, err)
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	switch driver {
	case "sqlite":
		// A single writer keeps SQLite from returning SQLITE_BUSY under concurrent handlers.
		conn.SetMaxOpenConns(1)
	default:
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(10)
	}

	if err := Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	log.Infof("Database connection (%s) initialized successfully.", driver)
	return conn, nil
}

// Migrate creates the tables used by the key/value store.
func Migrate(ctx context.Context, conn *sqlx.DB) error {
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		log.Errorf("Failed to migrate database: %v", err)
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the connection pool, logging instead of failing.
func Close(conn *sqlx.DB) {
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		log.Errorf("Error closing database connection: %v", err)
		return
	}
	log.Info("Database connection pool closed.")
}
