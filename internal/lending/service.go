// Package lending implements the loan escrow lifecycle: creation, funding
// with threshold disbursement, and proportional repayment distribution.
package lending

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/credichain/lending/internal/amount"
	"github.com/credichain/lending/internal/domain"
	"github.com/credichain/lending/internal/logger"
	"github.com/credichain/lending/internal/repository"
)

// Policy bounds the terms and participation the ledger accepts.
type Policy struct {
	MinInterestBPS     uint32
	MaxInterestBPS     uint32
	MaxLenders         int
	MaxDurationSeconds int64 // 0 means unbounded
}

// DefaultPolicy mirrors the on-chain program's limits.
func DefaultPolicy() Policy {
	return Policy{
		MinInterestBPS: 1,
		MaxInterestBPS: 5000,
		MaxLenders:     32,
	}
}

// Service executes lifecycle instructions against the ledger.
type Service struct {
	ledger   *repository.Ledger
	policy   Policy
	now      func() time.Time
	decimals int32
}

// DefaultDisplayDecimals is the number of decimals in one whole unit.
const DefaultDisplayDecimals = 6

type Option func(*Service)

// WithClock replaces the wall clock used for timestamps and due checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDisplayDecimals sets how many decimals make up one whole unit in views.
func WithDisplayDecimals(d int32) Option {
	return func(s *Service) { s.decimals = d }
}

// NewService creates a new lending service.
func NewService(ledger *repository.Ledger, policy Policy, opts ...Option) *Service {
	s := &Service{
		ledger:   ledger,
		policy:   policy,
		now:      time.Now,
		decimals: DefaultDisplayDecimals,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.now() }

// GetLoan returns one loan, or domain.ErrLoanNotFound.
func (s *Service) GetLoan(ctx context.Context, id string) (*domain.Loan, error) {
	return s.ledger.Loans.GetByID(ctx, id)
}

// ListFilter selects loans by participant and status. Empty fields match
// everything. Status "defaulted" selects funded loans past due.
type ListFilter struct {
	Borrower string
	Lender   string
	Status   string
}

func (s *Service) ListLoans(ctx context.Context, f ListFilter) ([]domain.Loan, error) {
	rf := repository.LoanFilter{Borrower: f.Borrower, Lender: f.Lender}
	var status domain.LoanStatus
	if f.Status != "" {
		var err error
		if status, err = domain.ParseLoanStatus(f.Status); err != nil {
			return nil, err
		}
		rf.Status = string(status)
		if status == domain.StatusDefaulted {
			rf.Status = string(domain.StatusFunded)
		}
	}

	loans, err := s.ledger.Loans.List(ctx, rf)
	if err != nil || (status != domain.StatusDefaulted && status != domain.StatusFunded) {
		return loans, err
	}

	// Defaulted is derived from the clock, so split funded loans here.
	now := s.now()
	out := loans[:0]
	for i := range loans {
		if domain.DisplayStatus(&loans[i], now) == status {
			out = append(out, loans[i])
		}
	}
	return out, nil
}

// AllLoans returns the full set of loan ledger entries.
func (s *Service) AllLoans(ctx context.Context) ([]domain.Loan, error) {
	return s.ledger.Loans.List(ctx, repository.LoanFilter{})
}

// RemainingCapacity is the amount a lender may still contribute to loanID.
func (s *Service) RemainingCapacity(ctx context.Context, loanID string) (uint64, error) {
	l, err := s.GetLoan(ctx, loanID)
	if err != nil {
		return 0, err
	}
	if l.Status != domain.StatusOpen {
		return 0, nil
	}
	return l.RemainingCapacity(), nil
}

// Transfers returns the value movements journaled for a loan.
func (s *Service) Transfers(ctx context.Context, loanID string) ([]domain.Transfer, error) {
	if _, err := s.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return s.ledger.Transfers.GetByLoanID(ctx, loanID)
}

// TransferQuery selects journal entries. Kind must be a known transfer kind
// when set; Account matches either side of a movement.
type TransferQuery struct {
	LoanID  string
	Kind    string
	Account string
	Page    int
	Limit   int
}

// ListTransfers returns one page of the journal and the total match count.
func (s *Service) ListTransfers(ctx context.Context, q TransferQuery) ([]domain.Transfer, int, error) {
	if q.Kind != "" {
		if _, err := domain.ParseTransferKind(q.Kind); err != nil {
			return nil, 0, err
		}
	}
	return s.ledger.Transfers.List(ctx, repository.TransferFilter{
		LoanID:  q.LoanID,
		Kind:    q.Kind,
		Account: q.Account,
		Page:    q.Page,
		Limit:   q.Limit,
	})
}

// TransferTotals sums the journal per transfer kind.
func (s *Service) TransferTotals(ctx context.Context) ([]repository.KindTotal, error) {
	return s.ledger.Transfers.TotalsByKind(ctx)
}

// Balance returns the wallet balance of identity; unknown identities hold 0.
func (s *Service) Balance(ctx context.Context, identity string) (uint64, error) {
	return s.ledger.Accounts.Balance(ctx, identity)
}

// Deposit credits new units to a wallet. It is the only operation that mints.
func (s *Service) Deposit(ctx context.Context, identity string, v uint64) (uint64, error) {
	if err := checkIdentity(identity); err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, domain.ErrInvalidAmount
	}

	var balance uint64
	err := s.ledger.RunInTx(ctx, func(tx *repository.Tx) error {
		if err := tx.Move(ctx, domain.Transfer{
			Kind:       domain.TransferDeposit,
			To:         identity,
			Amount:     v,
			OccurredAt: s.now(),
		}); err != nil {
			return err
		}
		var err error
		balance, err = tx.Accounts.Balance(ctx, identity)
		return err
	})
	if err != nil {
		return 0, err
	}

	logger.CtxInfo(ctx, "wallet credited",
		slog.String("identity", identity),
		slog.Uint64("amount", v),
		slog.Uint64("balance", balance),
	)
	return balance, nil
}

// checkIdentity rejects a missing caller and callers addressing the vault
// namespace.
func checkIdentity(identity string) error {
	if identity == "" {
		return fmt.Errorf("%w: missing identity", domain.ErrUnauthorized)
	}
	if domain.IsReservedIdentity(identity) {
		return fmt.Errorf("%w: identity %q is reserved", domain.ErrUnauthorized, identity)
	}
	return nil
}

// validateTerms checks terms against the policy.
func (s *Service) validateTerms(t domain.LoanTerms) error {
	switch {
	case t.TotalAmount == 0:
		return fmt.Errorf("%w: total amount must be positive", domain.ErrInvalidTerms)
	case t.DurationSeconds <= 0:
		return fmt.Errorf("%w: duration must be positive", domain.ErrInvalidTerms)
	case s.policy.MaxDurationSeconds > 0 && t.DurationSeconds > s.policy.MaxDurationSeconds:
		return fmt.Errorf("%w: duration exceeds %d seconds", domain.ErrInvalidTerms, s.policy.MaxDurationSeconds)
	case t.InterestBasisPoints < s.policy.MinInterestBPS || t.InterestBasisPoints > s.policy.MaxInterestBPS:
		return fmt.Errorf("%w: interest must be within %d..%d bps",
			domain.ErrInvalidTerms, s.policy.MinInterestBPS, s.policy.MaxInterestBPS)
	}
	if _, err := amount.RequiredRepayment(t.TotalAmount, t.InterestBasisPoints); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidTerms, err)
	}
	return nil
}
