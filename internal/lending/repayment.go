package lending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/credichain/lending/internal/amount"
	"github.com/credichain/lending/internal/domain"
	"github.com/credichain/lending/internal/logger"
	"github.com/credichain/lending/internal/repository"
)

// RepayResult is the outcome of a settled repayment.
type RepayResult struct {
	Loan     *domain.Loan    `json:"loan"`
	Required uint64          `json:"required"`
	Payouts  []domain.Payout `json:"payouts"`
}

// RepayLoan settles a funded loan in full. The borrower's amountProvided is
// escrowed and split across lenders by stake; the vault ends empty and the
// loan is classified on time or late against its due timestamp.
func (s *Service) RepayLoan(ctx context.Context, loanID, caller string, amountProvided uint64) (*RepayResult, error) {
	if err := checkIdentity(caller); err != nil {
		return nil, err
	}
	if amountProvided == 0 {
		return nil, domain.ErrInvalidAmount
	}

	res := &RepayResult{}
	err := s.ledger.RunInTx(ctx, func(tx *repository.Tx) error {
		loan, err := tx.Loans.GetByID(ctx, loanID)
		if err != nil {
			return err
		}
		if caller != loan.Borrower {
			return fmt.Errorf("%w: only the borrower may repay", domain.ErrUnauthorized)
		}
		if loan.Status != domain.StatusFunded {
			return fmt.Errorf("%w: status %s", domain.ErrLoanNotFunded, loan.Status)
		}

		required, err := amount.RequiredRepayment(loan.TotalAmount, loan.InterestBasisPoints)
		if err != nil {
			return err
		}
		res.Required = required
		if amountProvided < required {
			return fmt.Errorf("%w: provided %d, required %d",
				domain.ErrInsufficientRepayment, amountProvided, required)
		}
		if amountProvided > amount.MaxStorable {
			return amount.ErrOverflow
		}

		payouts, err := SplitRepayment(amountProvided, loan.FundedAmount, loan.Lenders)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		vault := domain.EscrowAccountID(loan.ID)
		if err := tx.Move(ctx, domain.Transfer{
			Kind:       domain.TransferRepay,
			LoanID:     loan.ID,
			From:       loan.Borrower,
			To:         vault,
			Amount:     amountProvided,
			OccurredAt: now,
		}); err != nil {
			return err
		}

		for _, p := range payouts {
			if p.Amount == 0 {
				continue
			}
			if err := tx.Move(ctx, domain.Transfer{
				Kind:       domain.TransferPayout,
				LoanID:     loan.ID,
				From:       vault,
				To:         p.Lender,
				Amount:     p.Amount,
				OccurredAt: now,
			}); err != nil {
				return err
			}
		}

		residue, err := tx.Accounts.Balance(ctx, vault)
		if err != nil {
			return err
		}
		if residue != 0 {
			return fmt.Errorf("%w: %s retains %d after distribution",
				domain.ErrVaultIntegrity, vault, residue)
		}

		repaidAt := now.Unix()
		if err := tx.Loans.UpdateStatus(ctx, loan.ID, repository.StatusChange{
			From:            domain.StatusFunded,
			To:              domain.ClassifyRepayment(repaidAt, loan.DueTimestamp),
			RepaidTimestamp: &repaidAt,
		}); err != nil {
			return err
		}

		res.Payouts = payouts
		res.Loan, err = tx.Loans.GetByID(ctx, loan.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.CtxInfo(ctx, "loan repaid",
		slog.String("loan_id", loanID),
		slog.String("borrower", caller),
		slog.Uint64("amount", amountProvided),
		slog.Uint64("required", res.Required),
		slog.Int("lenders", len(res.Payouts)),
		slog.String("status", res.Loan.Status.String()),
	)
	return res, nil
}

var errEmptyStake = errors.New("loan has no funded stake to distribute against")

// SplitRepayment divides total across lenders proportionally to their
// contributions. Each lender receives floor(total * contributed / funded);
// the division remainder goes to the largest contributor, the earliest one on
// ties. The payouts always sum to total.
func SplitRepayment(total, funded uint64, lenders []domain.LenderContribution) ([]domain.Payout, error) {
	if funded == 0 || len(lenders) == 0 {
		return nil, errEmptyStake
	}

	var stake uint64
	payouts := make([]domain.Payout, len(lenders))
	largest := 0
	var paid uint64
	for i, c := range lenders {
		stake += c.Amount
		share, err := amount.MulDiv(total, c.Amount, funded)
		if err != nil {
			return nil, fmt.Errorf("share for %s: %w", c.Lender, err)
		}
		payouts[i] = domain.Payout{Lender: c.Lender, Amount: share}
		paid += share
		if c.Amount > lenders[largest].Amount {
			largest = i
		}
	}
	if stake != funded {
		return nil, fmt.Errorf("lender stakes sum to %d, funded amount is %d", stake, funded)
	}

	// paid <= total because every share is floored.
	payouts[largest].Amount += total - paid
	return payouts, nil
}
