package domain

import "time"

// LoanTerms are the borrower-chosen, immutable terms of a loan.
type LoanTerms struct {
	TotalAmount         uint64 `json:"totalAmount"`
	InterestBasisPoints uint32 `json:"interestBasisPoints"`
	DurationSeconds     int64  `json:"durationSeconds"`
}

// LenderContribution is one lender's accumulated stake in a loan.
type LenderContribution struct {
	Lender string `json:"lender"`
	Amount uint64 `json:"amount"`
}

// Loan is the authoritative ledger entry for one loan.
type Loan struct {
	ID       string `json:"id"`
	Borrower string `json:"borrower"`
	Nonce    string `json:"nonce"`
	LoanTerms
	StartTimestamp  int64                `json:"startTimestamp"`
	DueTimestamp    int64                `json:"dueTimestamp"`
	FundedAmount    uint64               `json:"fundedAmount"`
	Lenders         []LenderContribution `json:"lenders"`
	Status          LoanStatus           `json:"status"`
	RepaidTimestamp *int64               `json:"repaidTimestamp,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	FundedAt        *time.Time           `json:"fundedAt,omitempty"`
}

// RemainingCapacity is the amount still needed to reach the funding threshold.
func (l *Loan) RemainingCapacity() uint64 {
	return l.TotalAmount - l.FundedAmount
}

// Contribution returns the lender's entry and its index, or -1.
func (l *Loan) Contribution(lender string) (LenderContribution, int) {
	for i, c := range l.Lenders {
		if c.Lender == lender {
			return c, i
		}
	}
	return LenderContribution{}, -1
}

// HasLender reports whether lender has contributed to the loan.
func (l *Loan) HasLender(lender string) bool {
	_, i := l.Contribution(lender)
	return i >= 0
}

// EscrowAccountID is the address of the vault bound to a loan.
func EscrowAccountID(loanID string) string {
	return VaultPrefix + loanID
}
