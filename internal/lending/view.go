package lending

import (
	"time"

	"github.com/credichain/lending/internal/amount"
	"github.com/credichain/lending/internal/domain"
)

// LoanView is the client-facing projection of a loan.
type LoanView struct {
	domain.Loan
	DisplayStatus     domain.LoanStatus `json:"displayStatus"`
	RequiredRepayment uint64            `json:"requiredRepayment"`
	RemainingCapacity uint64            `json:"remainingCapacity"`
	InterestPercent   string            `json:"interestPercent"`
	EscrowAccount     string            `json:"escrowAccount"`

	// Whole-unit renderings of the smallest-unit amounts above.
	TotalAmountDisplay       string `json:"totalAmountDisplay"`
	FundedAmountDisplay      string `json:"fundedAmountDisplay"`
	RequiredRepaymentDisplay string `json:"requiredRepaymentDisplay"`
}

// NewLoanView resolves display fields for l as of now, rendering amounts
// with the given number of decimals.
func NewLoanView(l *domain.Loan, now time.Time, decimals int32) LoanView {
	v := LoanView{
		Loan:            *l,
		DisplayStatus:   domain.DisplayStatus(l, now),
		InterestPercent: amount.InterestPercent(l.InterestBasisPoints),
		EscrowAccount:   domain.EscrowAccountID(l.ID),
	}
	if v.Lenders == nil {
		v.Lenders = []domain.LenderContribution{}
	}
	if l.Status == domain.StatusOpen {
		v.RemainingCapacity = l.RemainingCapacity()
	}
	// Terms were validated at creation, so this cannot overflow.
	v.RequiredRepayment, _ = amount.RequiredRepayment(l.TotalAmount, l.InterestBasisPoints)

	v.TotalAmountDisplay = amount.Format(l.TotalAmount, decimals)
	v.FundedAmountDisplay = amount.Format(l.FundedAmount, decimals)
	v.RequiredRepaymentDisplay = amount.Format(v.RequiredRepayment, decimals)
	return v
}

// NewLoanViews maps NewLoanView over loans.
func NewLoanViews(loans []domain.Loan, now time.Time, decimals int32) []LoanView {
	views := make([]LoanView, 0, len(loans))
	for i := range loans {
		views = append(views, NewLoanView(&loans[i], now, decimals))
	}
	return views
}

// View projects l at the service clock's current time.
func (s *Service) View(l *domain.Loan) LoanView {
	return NewLoanView(l, s.now(), s.decimals)
}

func (s *Service) Views(loans []domain.Loan) []LoanView {
	return NewLoanViews(loans, s.now(), s.decimals)
}
