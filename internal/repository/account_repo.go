package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/credichain/lending/internal/amount"
	"github.com/credichain/lending/internal/domain"
)

type AccountRepo struct {
	db DBTX
}

func NewAccountRepo(db DBTX) *AccountRepo {
	return &AccountRepo{db: db}
}

// CreateVault allocates the empty escrow account bound to loanID.
func (r *AccountRepo) CreateVault(ctx context.Context, loanID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, kind, loan_id, balance, updated_at) VALUES (?,?,?,0,?)`,
		domain.EscrowAccountID(loanID), string(domain.AccountVault), loanID,
		at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("create vault: %w", err)
	}
	return nil
}

// Get returns the account, or domain.ErrNotFound.
func (r *AccountRepo) Get(ctx context.Context, id string) (*domain.Account, error) {
	var a domain.Account
	var kind, updatedAt string
	var loanID sql.NullString
	var balance int64

	err := r.db.QueryRowContext(ctx,
		"SELECT id, kind, loan_id, balance, updated_at FROM accounts WHERE id = ?", id,
	).Scan(&a.ID, &kind, &loanID, &balance, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}

	a.Kind = domain.AccountKind(kind)
	a.Balance = uint64(balance)
	a.LoanID = loanID.String
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &a, nil
}

// Balance returns the balance of id, treating a missing wallet as empty.
func (r *AccountRepo) Balance(ctx context.Context, id string) (uint64, error) {
	a, err := r.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}

// Credit adds v to an account of the given kind. A wallet is created on
// first credit; a vault must already exist. Crediting an id that holds the
// other kind fails with domain.ErrAccountKindMismatch.
func (r *AccountRepo) Credit(ctx context.Context, id string, kind domain.AccountKind, v uint64, at time.Time) error {
	current, err := r.Balance(ctx, id)
	if err != nil {
		return err
	}
	if _, err := amount.Add(current, v); err != nil {
		return err
	}

	var res sql.Result
	switch kind {
	case domain.AccountVault:
		res, err = r.db.ExecContext(ctx,
			`UPDATE accounts SET balance = balance + ?, updated_at = ?
			WHERE id = ? AND kind = ?`,
			int64(v), at.UTC().Format(time.RFC3339), id, string(kind),
		)
	default:
		res, err = r.db.ExecContext(ctx,
			`INSERT INTO accounts (id, kind, balance, updated_at) VALUES (?,?,?,?)
			ON CONFLICT (id) DO UPDATE SET balance = balance + excluded.balance,
				updated_at = excluded.updated_at
			WHERE accounts.kind = excluded.kind`,
			id, string(domain.AccountWallet), int64(v), at.UTC().Format(time.RFC3339),
		)
	}
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	if ra, _ := res.RowsAffected(); ra != 1 {
		return r.kindError(ctx, id, kind)
	}
	return nil
}

// Debit subtracts v from an account of the given kind, failing with
// domain.ErrInsufficientFunds if the balance cannot cover it.
func (r *AccountRepo) Debit(ctx context.Context, id string, kind domain.AccountKind, v uint64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET balance = balance - ?, updated_at = ?
		WHERE id = ? AND kind = ? AND balance >= ?`,
		int64(v), at.UTC().Format(time.RFC3339), id, string(kind), int64(v),
	)
	if err != nil {
		return fmt.Errorf("debit: %w", err)
	}
	if ra, _ := res.RowsAffected(); ra != 1 {
		if err := r.kindError(ctx, id, kind); !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return domain.ErrInsufficientFunds
	}
	return nil
}

// kindError explains a write that matched no row: the account is of another
// kind, or it does not exist.
func (r *AccountRepo) kindError(ctx context.Context, id string, kind domain.AccountKind) error {
	a, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if a.Kind != kind {
		return fmt.Errorf("%w: %s is a %s", domain.ErrAccountKindMismatch, id, a.Kind)
	}
	return domain.ErrInsufficientFunds
}

// TotalBalance sums every account. It equals the sum of all deposits.
func (r *AccountRepo) TotalBalance(ctx context.Context) (uint64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(balance), 0) FROM accounts").Scan(&total)
	return uint64(total), err
}
