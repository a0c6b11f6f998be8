// ABOUTME: SQL audit store opened against SQLite (modernc.org/sqlite) or Postgres (pgx)
// ABOUTME: Creates the audit_log schema on open; dialects differ in placeholders and column types

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects SQL syntax for a backend.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// AuditStore persists audit records in an audit_log table.
type AuditStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// OpenSQLite opens or creates a SQLite database at path.
// Parent directories are created if needed.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*AuditStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s, err := NewAuditStore(ctx, db, SQLite, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("SQLite audit store initialized", "path", path)
	return s, nil
}

// OpenPostgres connects to Postgres using the pgx database/sql driver.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*AuditStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	s, err := NewAuditStore(ctx, db, Postgres, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Postgres audit store initialized")
	return s, nil
}

// NewAuditStore wraps an open database and ensures the schema exists.
func NewAuditStore(ctx context.Context, db *sql.DB, dialect Dialect, logger *slog.Logger) (*AuditStore, error) {
	s := &AuditStore{db: db, dialect: dialect, logger: logger}
	if err := s.createSchema(ctx); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

func (s *AuditStore) createSchema(ctx context.Context) error {
	boolType, tsType := "INTEGER", "TEXT"
	if s.dialect == Postgres {
		boolType, tsType = "BOOLEAN", "TIMESTAMPTZ"
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS audit_log (
			audit_id        TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			agent_id        TEXT NOT NULL,
			request_text    TEXT NOT NULL,
			response_text   TEXT NOT NULL,
			tools_used_json TEXT,
			pii_redacted    ` + boolType + ` NOT NULL,
			metadata_json   TEXT,
			ts              ` + tsType + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_user ON audit_log(user_id, ts)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *AuditStore) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Ping reports whether the database is reachable.
func (s *AuditStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *AuditStore) Close() error {
	return s.db.Close()
}
