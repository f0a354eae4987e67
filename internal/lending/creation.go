package lending

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/credichain/lending/internal/domain"
	"github.com/credichain/lending/internal/logger"
	"github.com/credichain/lending/internal/repository"
)

// loanNamespace scopes name-based loan ids.
var loanNamespace = uuid.MustParse("6f1c2f0e-4b7a-5d39-9c1e-8a4e2b7d3c10")

// DeriveLoanID returns the deterministic id of the loan a borrower creates
// with nonce. The same pair always yields the same id.
func DeriveLoanID(borrower, nonce string) string {
	return uuid.NewSHA1(loanNamespace, []byte(borrower+"\x00"+nonce)).String()
}

// CreateLoan allocates a new Open loan and its empty escrow vault.
func (s *Service) CreateLoan(ctx context.Context, borrower, nonce string, terms domain.LoanTerms) (*domain.Loan, error) {
	if err := checkIdentity(borrower); err != nil {
		return nil, err
	}
	if nonce == "" {
		return nil, fmt.Errorf("%w: nonce is required", domain.ErrInvalidTerms)
	}
	if err := s.validateTerms(terms); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	start := now.Unix()
	if terms.DurationSeconds > math.MaxInt64-start {
		return nil, fmt.Errorf("%w: due time overflows", domain.ErrInvalidTerms)
	}

	loan := &domain.Loan{
		ID:             DeriveLoanID(borrower, nonce),
		Borrower:       borrower,
		Nonce:          nonce,
		LoanTerms:      terms,
		StartTimestamp: start,
		DueTimestamp:   start + terms.DurationSeconds,
		Status:         domain.StatusOpen,
		CreatedAt:      now,
	}

	err := s.ledger.RunInTx(ctx, func(tx *repository.Tx) error {
		exists, err := tx.Loans.Exists(ctx, loan.ID)
		if err != nil {
			return fmt.Errorf("check loan id: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateLoanID, loan.ID)
		}
		if err := tx.Loans.Insert(ctx, loan); err != nil {
			return err
		}
		return tx.Accounts.CreateVault(ctx, loan.ID, now)
	})
	if err != nil {
		return nil, err
	}

	logger.CtxInfo(ctx, "loan created",
		slog.String("loan_id", loan.ID),
		slog.String("borrower", borrower),
		slog.Uint64("total_amount", terms.TotalAmount),
		slog.Int64("interest_bps", int64(terms.InterestBasisPoints)),
		slog.Int64("due_ts", loan.DueTimestamp),
	)
	return loan, nil
}
