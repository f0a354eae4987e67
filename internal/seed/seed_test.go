package seed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credichain/lending/internal/domain"
	"github.com/credichain/lending/internal/lending"
	"github.com/credichain/lending/internal/repository"
)

func newLedger(t *testing.T) *repository.Ledger {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return repository.NewLedger(db)
}

var base = time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)

func TestReplayDemoScenario(t *testing.T) {
	sc, err := Load("../../testdata/seed_loans.json")
	require.NoError(t, err)

	ctx := context.Background()
	ledger := newLedger(t)
	sum, err := Replay(ctx, ledger, lending.DefaultPolicy(), sc, base)
	require.NoError(t, err)
	assert.Equal(t, len(sc.Steps), sum.Steps)
	assert.Equal(t, 4, sum.Loans)
	assert.Equal(t, 3, sum.Funded)
	assert.Equal(t, 2, sum.Repaid)

	onTime, err := ledger.Loans.GetByID(ctx, lending.DeriveLoanID("bob", "1"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRepaidOnTime, onTime.Status)
	assert.Equal(t, base.Unix(), onTime.StartTimestamp)
	require.NotNil(t, onTime.RepaidTimestamp)
	assert.Equal(t, base.Unix()+3600, *onTime.RepaidTimestamp)

	late, err := ledger.Loans.GetByID(ctx, lending.DeriveLoanID("erin", "a"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRepaidLate, late.Status)

	open, err := ledger.Loans.GetByID(ctx, lending.DeriveLoanID("bob", "2"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, open.Status)
	assert.Equal(t, uint64(200_000), open.FundedAmount)

	total, err := ledger.Accounts.TotalBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4_450_000), total)
}

func TestReplayStopsAtFirstFailure(t *testing.T) {
	sc := &Scenario{Steps: []Step{
		{Op: OpDeposit, Identity: "alice", Amount: 10},
		{Op: OpCreate, Identity: "bob", Nonce: "1", Terms: &domain.LoanTerms{TotalAmount: 100, InterestBasisPoints: 10, DurationSeconds: 60}},
		{Op: OpFund, Identity: "alice", Borrower: "bob", Nonce: "1", Amount: 50},
		{Op: OpDeposit, Identity: "carol", Amount: 10},
	}}

	ctx := context.Background()
	ledger := newLedger(t)
	sum, err := Replay(ctx, ledger, lending.DefaultPolicy(), sc, base)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.ErrorContains(t, err, "step 2")
	assert.Equal(t, 2, sum.Steps)

	// The deposit and loan from steps 0 and 1 are rolled back with it.
	empty, err := ledger.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)
	_, err = ledger.Loans.GetByID(ctx, lending.DeriveLoanID("bob", "1"))
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)

	// A corrected scenario then replays cleanly into the same ledger.
	sc.Steps[0].Amount = 50
	sum, err = Replay(ctx, ledger, lending.DefaultPolicy(), sc, base)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Steps)
	transfers, total, err := ledger.Transfers.List(ctx, repository.TransferFilter{Limit: -1})
	require.NoError(t, err)
	assert.Equal(t, 3, total, "two deposits and one funding")
	assert.Equal(t, int64(1), transfers[0].ID)
}

func TestReplayRefusesNonEmptyLedger(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	sc := &Scenario{Steps: []Step{{Op: OpDeposit, Identity: "alice", Amount: 10}}}

	_, err := Replay(ctx, ledger, lending.DefaultPolicy(), sc, base)
	require.NoError(t, err)

	_, err = Replay(ctx, ledger, lending.DefaultPolicy(), sc, base)
	assert.ErrorIs(t, err, ErrLedgerNotEmpty)

	bal, err := ledger.Accounts.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), bal, "existing history is left alone")
}

func TestReplayRejectsMalformedSteps(t *testing.T) {
	tests := []struct {
		name  string
		steps []Step
	}{
		{"unknown op", []Step{{Op: "burn", Identity: "x"}}},
		{"create without terms", []Step{{Op: OpCreate, Identity: "bob", Nonce: "1"}}},
		{"time goes backwards", []Step{
			{At: 10, Op: OpDeposit, Identity: "a", Amount: 1},
			{At: 5, Op: OpDeposit, Identity: "a", Amount: 1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Replay(context.Background(), newLedger(t), lending.DefaultPolicy(), &Scenario{Steps: tt.steps}, base)
			assert.Error(t, err)
		})
	}
}
