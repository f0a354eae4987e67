package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credichain/lending/internal/domain"
)

func newTestLedger(t *testing.T) (*Ledger, *sql.DB) {
	t.Helper()
	db, err := InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLedger(db), db
}

func sampleLoan(id string) *domain.Loan {
	return &domain.Loan{
		ID:       id,
		Borrower: "borrower-1",
		Nonce:    id,
		LoanTerms: domain.LoanTerms{
			TotalAmount:         1_000,
			InterestBasisPoints: 500,
			DurationSeconds:     60,
		},
		StartTimestamp: 100,
		DueTimestamp:   160,
		Status:         domain.StatusOpen,
		CreatedAt:      time.Unix(100, 0).UTC(),
	}
}

func TestLoanRepo_InsertAndGet(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	err := ledger.RunInTx(ctx, func(tx *Tx) error {
		if err := tx.Loans.Insert(ctx, sampleLoan("L1")); err != nil {
			return err
		}
		if err := tx.Loans.AddContribution(ctx, "L1", "alice", 300, 0); err != nil {
			return err
		}
		if err := tx.Loans.AddContribution(ctx, "L1", "bob", 200, 1); err != nil {
			return err
		}
		return tx.Loans.AddContribution(ctx, "L1", "alice", 100, 2)
	})
	require.NoError(t, err)

	got, err := ledger.Loans.GetByID(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, got.Status)
	assert.Equal(t, uint64(1_000), got.TotalAmount)
	assert.Equal(t, []domain.LenderContribution{
		{Lender: "alice", Amount: 400},
		{Lender: "bob", Amount: 200},
	}, got.Lenders)

	_, err = ledger.Loans.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)
}

func TestLoanRepo_ListFilters(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.RunInTx(ctx, func(tx *Tx) error {
		a := sampleLoan("A")
		b := sampleLoan("B")
		b.Borrower = "borrower-2"
		for _, l := range []*domain.Loan{a, b} {
			if err := tx.Loans.Insert(ctx, l); err != nil {
				return err
			}
		}
		return tx.Loans.AddContribution(ctx, "B", "carol", 10, 0)
	}))

	all, err := ledger.Loans.List(ctx, LoanFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byBorrower, err := ledger.Loans.List(ctx, LoanFilter{Borrower: "borrower-2"})
	require.NoError(t, err)
	require.Len(t, byBorrower, 1)
	assert.Equal(t, "B", byBorrower[0].ID)

	byLender, err := ledger.Loans.List(ctx, LoanFilter{Lender: "carol"})
	require.NoError(t, err)
	require.Len(t, byLender, 1)
	assert.Equal(t, "B", byLender[0].ID)
	assert.Equal(t, uint64(10), byLender[0].Lenders[0].Amount)
}

func TestLoanRepo_UpdateStatusGuarded(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.RunInTx(ctx, func(tx *Tx) error {
		return tx.Loans.Insert(ctx, sampleLoan("L1"))
	}))

	now := time.Unix(120, 0)
	require.NoError(t, ledger.Loans.UpdateStatus(ctx, "L1", StatusChange{
		From: domain.StatusOpen, To: domain.StatusFunded, FundedAt: &now,
	}))

	// Stale guard: the loan is no longer open.
	err := ledger.Loans.UpdateStatus(ctx, "L1", StatusChange{From: domain.StatusOpen, To: domain.StatusFunded})
	assert.Error(t, err)

	// Backward move is never allowed.
	err = ledger.Loans.UpdateStatus(ctx, "L1", StatusChange{From: domain.StatusFunded, To: domain.StatusOpen})
	assert.Error(t, err)

	got, err := ledger.Loans.GetByID(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFunded, got.Status)
	require.NotNil(t, got.FundedAt)
	assert.Equal(t, now.Unix(), got.FundedAt.Unix())
}

func TestLoanRepo_UnknownStatusRejected(t *testing.T) {
	ledger, db := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.RunInTx(ctx, func(tx *Tx) error {
		return tx.Loans.Insert(ctx, sampleLoan("L1"))
	}))

	_, err := db.Exec("UPDATE loans SET status = 'settled' WHERE id = 'L1'")
	require.NoError(t, err)

	_, err = ledger.Loans.GetByID(ctx, "L1")
	assert.ErrorIs(t, err, domain.ErrUnknownStatus)
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := ledger.RunInTx(ctx, func(tx *Tx) error {
		if err := tx.Move(ctx, domain.Transfer{Kind: domain.TransferDeposit, To: "alice", Amount: 50}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	bal, err := ledger.Accounts.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, bal)

	transfers, total, err := ledger.Transfers.List(ctx, TransferFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, transfers)
}

func TestMove_DebitsCreditsAndJournals(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.RunInTx(ctx, func(tx *Tx) error {
		if err := tx.Move(ctx, domain.Transfer{Kind: domain.TransferDeposit, To: "alice", Amount: 100}); err != nil {
			return err
		}
		return tx.Move(ctx, domain.Transfer{Kind: domain.TransferFund, From: "alice", To: "bob", Amount: 40})
	}))

	alice, err := ledger.Accounts.Balance(ctx, "alice")
	require.NoError(t, err)
	bob, err := ledger.Accounts.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(60), alice)
	assert.Equal(t, uint64(40), bob)

	total, err := ledger.Accounts.TotalBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), total)

	err = ledger.RunInTx(ctx, func(tx *Tx) error {
		return tx.Move(ctx, domain.Transfer{Kind: domain.TransferFund, From: "alice", To: "bob", Amount: 61})
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	totals, err := ledger.Transfers.TotalsByKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, []KindTotal{
		{Kind: domain.TransferDeposit, Count: 1, Amount: 100},
		{Kind: domain.TransferFund, Count: 1, Amount: 40},
	}, totals)
}

func TestAccountRepo_KindGuards(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	at := time.Unix(100, 0)
	vault := domain.EscrowAccountID("L1")

	require.NoError(t, ledger.RunInTx(ctx, func(tx *Tx) error {
		if err := tx.Loans.Insert(ctx, sampleLoan("L1")); err != nil {
			return err
		}
		if err := tx.Accounts.CreateVault(ctx, "L1", at); err != nil {
			return err
		}
		if err := tx.Move(ctx, domain.Transfer{Kind: domain.TransferDeposit, To: "alice", Amount: 500}); err != nil {
			return err
		}
		return tx.Move(ctx, domain.Transfer{Kind: domain.TransferFund, LoanID: "L1", From: "alice", To: vault, Amount: 400})
	}))

	accounts := ledger.Accounts
	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"debit vault as wallet", func() error { return accounts.Debit(ctx, vault, domain.AccountWallet, 1, at) }, domain.ErrAccountKindMismatch},
		{"credit vault as wallet", func() error { return accounts.Credit(ctx, vault, domain.AccountWallet, 1, at) }, domain.ErrAccountKindMismatch},
		{"debit wallet as vault", func() error { return accounts.Debit(ctx, "alice", domain.AccountVault, 1, at) }, domain.ErrAccountKindMismatch},
		{"credit wallet as vault", func() error { return accounts.Credit(ctx, "alice", domain.AccountVault, 1, at) }, domain.ErrAccountKindMismatch},
		{"credit missing vault", func() error { return accounts.Credit(ctx, domain.EscrowAccountID("L2"), domain.AccountVault, 1, at) }, domain.ErrNotFound},
		{"overdraw vault", func() error { return accounts.Debit(ctx, vault, domain.AccountVault, 401, at) }, domain.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), tt.want)
		})
	}

	held, err := accounts.Balance(ctx, vault)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), held)
	alice, err := accounts.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), alice)

	a, err := accounts.Get(ctx, vault)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountVault, a.Kind)
}

func TestLedger_ResetEmptiesEverything(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	empty, err := ledger.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, ledger.RunInTx(ctx, func(tx *Tx) error {
		if err := tx.Loans.Insert(ctx, sampleLoan("L1")); err != nil {
			return err
		}
		if err := tx.Loans.AddContribution(ctx, "L1", "alice", 10, 0); err != nil {
			return err
		}
		if err := tx.Accounts.CreateVault(ctx, "L1", time.Unix(100, 0)); err != nil {
			return err
		}
		return tx.Move(ctx, domain.Transfer{Kind: domain.TransferDeposit, To: "alice", Amount: 10})
	}))

	empty, err = ledger.IsEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)

	require.NoError(t, ledger.Reset(ctx))
	empty, err = ledger.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, ledger.RunInTx(ctx, func(tx *Tx) error {
		return tx.Move(ctx, domain.Transfer{Kind: domain.TransferDeposit, To: "bob", Amount: 1})
	}))
	transfers, _, err := ledger.Transfers.List(ctx, TransferFilter{Limit: -1})
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, int64(1), transfers[0].ID, "journal ids restart")
}
