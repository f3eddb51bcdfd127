// Package sqlite provides durable persistence for cases, their history and
// the idempotency keys on the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "caseflow.db"

// DB wraps the SQLite connection.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database inside dir and applies migrations.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return OpenDSN(filepath.Join(dir, FileName))
}

// OpenDSN opens the database at an explicit DSN.
func OpenDSN(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time; SQLite serialises writes anyway.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	db := &DB{db: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.db.Close()
}

// Ping checks the connection.
func (db *DB) Ping() error {
	return db.db.Ping()
}

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema statements.
// Each string is a single SQL statement (SQLite executes one at a time).
// Money is stored as TEXT so decimal values round-trip exactly.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS cases (
			id                 TEXT PRIMARY KEY,
			debtor_id          TEXT NOT NULL,
			creditor_id        TEXT NOT NULL DEFAULT '',
			original_debt      TEXT NOT NULL DEFAULT '0',
			current_debt       TEXT NOT NULL DEFAULT '0',
			paid_amount        TEXT NOT NULL DEFAULT '0',
			interest_accrued   TEXT NOT NULL DEFAULT '0',
			currency           TEXT NOT NULL DEFAULT '',
			status             TEXT NOT NULL,
			priority           TEXT NOT NULL DEFAULT 'MEDIUM',
			assigned_agent     TEXT NOT NULL DEFAULT '',
			assigned_team      TEXT NOT NULL DEFAULT '',
			created_at         TEXT NOT NULL,
			updated_at         TEXT NOT NULL,
			last_contact_at    TEXT,
			last_payment_at    TEXT,
			next_action_at     TEXT,
			closed_at          TEXT,
			source_portfolio   TEXT NOT NULL DEFAULT '',
			external_reference TEXT NOT NULL DEFAULT '',
			tags               TEXT NOT NULL DEFAULT '[]',
			notes              TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(status)`,
		`CREATE INDEX IF NOT EXISTS idx_cases_debtor ON cases(debtor_id)`,

		`CREATE TABLE IF NOT EXISTS case_history (
			id          TEXT PRIMARY KEY,
			seq         INTEGER NOT NULL,
			case_id     TEXT NOT NULL,
			kind        TEXT NOT NULL,
			description TEXT NOT NULL,
			actor       TEXT NOT NULL,
			created_at  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_case_history_case ON case_history(case_id, seq)`,

		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			namespace  TEXT NOT NULL,
			key        TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(namespace, key)
		)`,
	}
}
