package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
//
// The pool is limited to a single connection: every ledger instruction runs
// in one transaction on that connection, so instructions never interleave.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS loans (
			id TEXT PRIMARY KEY,
			borrower TEXT NOT NULL,
			nonce TEXT NOT NULL,
			total_amount INTEGER NOT NULL CHECK (total_amount > 0),
			interest_bps INTEGER NOT NULL,
			duration_seconds INTEGER NOT NULL CHECK (duration_seconds > 0),
			start_ts INTEGER NOT NULL,
			due_ts INTEGER NOT NULL,
			funded_amount INTEGER NOT NULL DEFAULT 0
				CHECK (funded_amount >= 0 AND funded_amount <= total_amount),
			status TEXT NOT NULL,
			repaid_ts INTEGER,
			created_at DATETIME NOT NULL,
			funded_at DATETIME,
			UNIQUE (borrower, nonce)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_loans_borrower ON loans(borrower)`,
		`CREATE INDEX IF NOT EXISTS idx_loans_status ON loans(status)`,

		`CREATE TABLE IF NOT EXISTS loan_lenders (
			loan_id TEXT NOT NULL,
			lender TEXT NOT NULL,
			amount INTEGER NOT NULL CHECK (amount > 0),
			position INTEGER NOT NULL,
			PRIMARY KEY (loan_id, lender),
			FOREIGN KEY (loan_id) REFERENCES loans(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_loan_lenders_lender ON loan_lenders(lender)`,

		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			loan_id TEXT UNIQUE,
			balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (loan_id) REFERENCES loans(id)
		)`,

		`CREATE TABLE IF NOT EXISTS transfers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			loan_id TEXT,
			from_account TEXT,
			to_account TEXT NOT NULL,
			amount INTEGER NOT NULL CHECK (amount > 0),
			occurred_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_loan ON transfers(loan_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_kind ON transfers(kind)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}

	return nil
}
