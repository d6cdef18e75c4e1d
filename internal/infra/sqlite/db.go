// Package sqlite persists the audit ledger in an embedded SQLite database.
//
// One database file lives in the directory handed to Open; no location is
// ever derived from the running executable.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/possuite/auditguard/internal/domain"
)

// FileName is the database file created inside the store directory.
const FileName = "auditguard.db"

// timeLayout is fixed-width in UTC so TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB is the SQLite-backed audit store.
type DB struct {
	db   *sql.DB
	path string
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open creates or opens the store in dir and applies migrations.
//
// Transactions are BEGIN IMMEDIATE and the pool holds a single connection,
// so chain-tip reads and inserts are serialized across goroutines.
func Open(dir string) (*DB, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: store directory is required", domain.ErrValidation)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, storageErr("create store directory", err)
	}

	path := filepath.Join(dir, FileName)
	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storageErr("open database", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, storageErr("connect database", err)
	}

	db := &DB{db: sqlDB, path: path}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.db == nil {
		return nil
	}
	return db.db.Close()
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return storageErr("migrate", err)
		}
	}
	return nil
}

// Migrations returns the schema statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Hash-chained ledger, keyed by chain index
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			chain_index      INTEGER PRIMARY KEY,
			id               TEXT NOT NULL UNIQUE,
			log_type         TEXT NOT NULL,
			category         TEXT NOT NULL,
			title            TEXT NOT NULL,
			description      TEXT NOT NULL,
			amount           REAL,
			previous_hash    TEXT,
			current_hash     TEXT NOT NULL,
			app_clock        INTEGER NOT NULL,
			system_clock     INTEGER NOT NULL,
			session_id       TEXT NOT NULL,
			user_signature   TEXT NOT NULL,
			table_id         TEXT,
			table_name       TEXT,
			product_id       TEXT,
			product_name     TEXT,
			user_id          TEXT,
			user_name        TEXT,
			metadata         TEXT,
			created_at       TEXT NOT NULL,
			secure_timestamp TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_created ON ledger_entries(created_at)`,
		`CREATE TRIGGER IF NOT EXISTS ledger_entries_no_update
			BEFORE UPDATE ON ledger_entries
			BEGIN SELECT RAISE(ABORT, 'ledger entries are append-only'); END`,
		`CREATE TRIGGER IF NOT EXISTS ledger_entries_no_delete
			BEFORE DELETE ON ledger_entries
			BEGIN SELECT RAISE(ABORT, 'ledger entries are append-only'); END`,

		// Per-session usage clocks
		`CREATE TABLE IF NOT EXISTS app_clocks (
			session_id        TEXT PRIMARY KEY,
			start_time        INTEGER NOT NULL,
			total_usage_time  INTEGER NOT NULL,
			last_activity     INTEGER NOT NULL,
			system_start_time INTEGER NOT NULL,
			clock_signature   TEXT NOT NULL,
			created_at        TEXT NOT NULL,
			updated_at        TEXT NOT NULL
		)`,

		// Immutable anomaly findings
		`CREATE TABLE IF NOT EXISTS anomalies (
			id              TEXT PRIMARY KEY,
			anomaly_type    TEXT NOT NULL,
			severity        TEXT NOT NULL,
			description     TEXT NOT NULL,
			timestamp       TEXT NOT NULL,
			evidence        TEXT NOT NULL,
			recommendations TEXT NOT NULL,
			created_at      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_timestamp ON anomalies(timestamp)`,
		`CREATE TRIGGER IF NOT EXISTS anomalies_no_update
			BEFORE UPDATE ON anomalies
			BEGIN SELECT RAISE(ABORT, 'anomalies are immutable'); END`,

		// Append-only resolution events
		`CREATE TABLE IF NOT EXISTS anomaly_resolutions (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			id          TEXT NOT NULL UNIQUE,
			anomaly_id  TEXT NOT NULL REFERENCES anomalies(id),
			resolved_by TEXT NOT NULL,
			resolved_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_resolutions_anomaly ON anomaly_resolutions(anomaly_id, seq)`,

		// Compliance reports
		`CREATE TABLE IF NOT EXISTS compliance_reports (
			id                 TEXT PRIMARY KEY,
			period_start       TEXT NOT NULL,
			period_end         TEXT NOT NULL,
			country_code       TEXT NOT NULL,
			total_transactions INTEGER NOT NULL,
			total_amount       REAL NOT NULL,
			anomalies_count    INTEGER NOT NULL,
			chain_integrity    INTEGER NOT NULL,
			time_consistency   INTEGER NOT NULL,
			generated_at       TEXT NOT NULL,
			report_signature   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_generated ON compliance_reports(generated_at)`,

		// Security configuration singleton
		`CREATE TABLE IF NOT EXISTS security_config (
			id                          TEXT PRIMARY KEY CHECK (id = 'default'),
			enable_chain_validation     INTEGER NOT NULL DEFAULT 1,
			enable_time_validation      INTEGER NOT NULL DEFAULT 1,
			enable_anomaly_detection    INTEGER NOT NULL DEFAULT 1,
			max_time_drift              INTEGER NOT NULL DEFAULT 300,
			min_transaction_interval    INTEGER NOT NULL DEFAULT 1000,
			suspicious_amount_threshold REAL NOT NULL DEFAULT 1000.0,
			compliance_country          TEXT NOT NULL DEFAULT 'FR',
			retention_period            INTEGER NOT NULL DEFAULT 2190,
			enable_real_time_monitoring INTEGER NOT NULL DEFAULT 1,
			created_at                  TEXT NOT NULL,
			updated_at                  TEXT NOT NULL
		)`,
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(column, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q: %v", domain.ErrDecode, column, s, err)
	}
	return t.UTC(), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
