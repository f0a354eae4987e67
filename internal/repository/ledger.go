package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/credichain/lending/internal/domain"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Ledger is the execution substrate for lifecycle instructions. Reads outside
// an instruction go through Loans, Accounts and Transfers; writes go through
// RunInTx.
type Ledger struct {
	db        *sql.DB
	Loans     *LoanRepo
	Accounts  *AccountRepo
	Transfers *TransferRepo
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{
		db:        db,
		Loans:     NewLoanRepo(db),
		Accounts:  NewAccountRepo(db),
		Transfers: NewTransferRepo(db),
	}
}

// Tx groups the repositories bound to one SQL transaction.
type Tx struct {
	Loans     *LoanRepo
	Accounts  *AccountRepo
	Transfers *TransferRepo
}

// RunInTx executes fn as one atomic instruction. Any error returned by fn
// rolls back every write it made.
func (l *Ledger) RunInTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	tx := &Tx{
		Loans:     NewLoanRepo(sqlTx),
		Accounts:  NewAccountRepo(sqlTx),
		Transfers: NewTransferRepo(sqlTx),
	}
	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Move debits from, credits to and journals the movement. An empty from
// mints new units (deposits only). Each side is written only if the stored
// account kind matches the kind its id addresses.
func (tx *Tx) Move(ctx context.Context, t domain.Transfer) error {
	if t.Amount == 0 {
		return domain.ErrInvalidAmount
	}
	if t.OccurredAt.IsZero() {
		t.OccurredAt = time.Now().UTC()
	}
	if t.From != "" {
		if err := tx.Accounts.Debit(ctx, t.From, domain.AccountKindOf(t.From), t.Amount, t.OccurredAt); err != nil {
			return fmt.Errorf("debit %s: %w", t.From, err)
		}
	}
	if err := tx.Accounts.Credit(ctx, t.To, domain.AccountKindOf(t.To), t.Amount, t.OccurredAt); err != nil {
		return fmt.Errorf("credit %s: %w", t.To, err)
	}
	if _, err := tx.Transfers.Insert(ctx, &t); err != nil {
		return fmt.Errorf("journal %s: %w", t.Kind, err)
	}
	return nil
}

// IsEmpty reports whether the ledger holds no loans, accounts or journal
// entries.
func (l *Ledger) IsEmpty(ctx context.Context) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM loans)
		      + (SELECT COUNT(*) FROM accounts)
		      + (SELECT COUNT(*) FROM transfers)`).Scan(&n)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Reset deletes every row in one transaction and restarts journal ids.
func (l *Ledger) Reset(ctx context.Context) error {
	sqlTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM transfers",
		"DELETE FROM loan_lenders",
		"DELETE FROM accounts",
		"DELETE FROM loans",
		"DELETE FROM sqlite_sequence WHERE name = 'transfers'",
	} {
		if _, err := sqlTx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	return sqlTx.Commit()
}
