package lending

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/credichain/lending/internal/domain"
	"github.com/credichain/lending/internal/logger"
	"github.com/credichain/lending/internal/repository"
)

// FundResult is the outcome of one accepted contribution.
type FundResult struct {
	Loan *domain.Loan `json:"loan"`
	// Disbursed is the amount released to the borrower, zero unless this
	// contribution reached the funding threshold.
	Disbursed uint64 `json:"disbursed"`
}

// FundLoan moves v from lender into the loan's escrow. A contribution that
// completes the requested amount disburses the whole vault to the borrower
// and marks the loan Funded in the same instruction.
func (s *Service) FundLoan(ctx context.Context, loanID, lender string, v uint64) (*FundResult, error) {
	if err := checkIdentity(lender); err != nil {
		return nil, err
	}
	if v == 0 {
		return nil, domain.ErrInvalidAmount
	}

	res := &FundResult{}
	err := s.ledger.RunInTx(ctx, func(tx *repository.Tx) error {
		loan, err := tx.Loans.GetByID(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != domain.StatusOpen {
			return fmt.Errorf("%w: status %s", domain.ErrLoanNotOpen, loan.Status)
		}
		if lender == loan.Borrower {
			return domain.ErrSelfFunding
		}
		if v > loan.RemainingCapacity() {
			return fmt.Errorf("%w: offered %d, remaining %d",
				domain.ErrOverfundingRejected, v, loan.RemainingCapacity())
		}
		if !loan.HasLender(lender) && len(loan.Lenders) >= s.policy.MaxLenders {
			return fmt.Errorf("%w: limit %d", domain.ErrTooManyLenders, s.policy.MaxLenders)
		}

		now := s.now().UTC()
		vault := domain.EscrowAccountID(loan.ID)
		if err := tx.Move(ctx, domain.Transfer{
			Kind:       domain.TransferFund,
			LoanID:     loan.ID,
			From:       lender,
			To:         vault,
			Amount:     v,
			OccurredAt: now,
		}); err != nil {
			return err
		}

		if err := tx.Loans.AddContribution(ctx, loan.ID, lender, v, len(loan.Lenders)); err != nil {
			return err
		}
		funded := loan.FundedAmount + v
		if err := tx.Loans.UpdateFundedAmount(ctx, loan.ID, funded); err != nil {
			return err
		}

		if funded == loan.TotalAmount {
			disbursed, err := disburse(ctx, tx, loan, now)
			if err != nil {
				return err
			}
			res.Disbursed = disbursed
		}

		res.Loan, err = tx.Loans.GetByID(ctx, loan.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.CtxInfo(ctx, "loan funding applied",
		slog.String("loan_id", loanID),
		slog.String("lender", lender),
		slog.Uint64("amount", v),
		slog.Uint64("funded_amount", res.Loan.FundedAmount),
		slog.String("status", res.Loan.Status.String()),
	)
	if res.Disbursed > 0 {
		logger.CtxInfo(ctx, "loan disbursed",
			slog.String("loan_id", loanID),
			slog.String("borrower", res.Loan.Borrower),
			slog.Uint64("amount", res.Disbursed),
		)
	}
	return res, nil
}

// disburse releases the entire vault balance to the borrower and moves the
// loan to Funded.
func disburse(ctx context.Context, tx *repository.Tx, loan *domain.Loan, now time.Time) (uint64, error) {
	vault := domain.EscrowAccountID(loan.ID)
	balance, err := tx.Accounts.Balance(ctx, vault)
	if err != nil {
		return 0, err
	}
	if balance != loan.TotalAmount {
		return 0, fmt.Errorf("%w: %s holds %d, expected %d",
			domain.ErrVaultIntegrity, vault, balance, loan.TotalAmount)
	}

	if err := tx.Move(ctx, domain.Transfer{
		Kind:       domain.TransferDisburse,
		LoanID:     loan.ID,
		From:       vault,
		To:         loan.Borrower,
		Amount:     balance,
		OccurredAt: now,
	}); err != nil {
		return 0, err
	}

	err = tx.Loans.UpdateStatus(ctx, loan.ID, repository.StatusChange{
		From:     domain.StatusOpen,
		To:       domain.StatusFunded,
		FundedAt: &now,
	})
	return balance, err
}
