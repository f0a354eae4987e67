// Package reputation derives per-borrower trust records from the loan ledger
// and persists them for the read API.
package reputation

import (
	"sort"
	"time"

	"github.com/credichain/lending/internal/domain"
)

// Scoring holds the score rule parameters.
type Scoring struct {
	Initial   int
	Increment int
	Decrement int
	Min       int
	Max       int
}

func DefaultScoring() Scoring {
	return Scoring{
		Initial:   50,
		Increment: 5,
		Decrement: 10,
		Min:       0,
		Max:       100,
	}
}

// Apply moves score by one repayment outcome, clamped to [Min, Max].
func (s Scoring) Apply(score int, status domain.LoanStatus) int {
	switch status {
	case domain.StatusRepaidOnTime:
		score += s.Increment
		if score > s.Max {
			score = s.Max
		}
	case domain.StatusRepaidLate:
		score -= s.Decrement
		if score < s.Min {
			score = s.Min
		}
	}
	return score
}

// Compute builds every borrower's record from scratch over loans. Each loan
// counts once toward LoansTaken; repaid loans are replayed in repayment order
// (loan id breaks ties) so the score does not depend on scan order.
func Compute(loans []domain.Loan, sc Scoring, now time.Time) map[string]domain.ReputationRecord {
	byBorrower := make(map[string][]domain.Loan)
	for _, l := range loans {
		byBorrower[l.Borrower] = append(byBorrower[l.Borrower], l)
	}

	out := make(map[string]domain.ReputationRecord, len(byBorrower))
	for borrower, taken := range byBorrower {
		repaid := make([]domain.Loan, 0, len(taken))
		for _, l := range taken {
			if l.Status.IsRepaid() && l.RepaidTimestamp != nil {
				repaid = append(repaid, l)
			}
		}
		sort.Slice(repaid, func(i, j int) bool {
			ti, tj := *repaid[i].RepaidTimestamp, *repaid[j].RepaidTimestamp
			if ti != tj {
				return ti < tj
			}
			return repaid[i].ID < repaid[j].ID
		})

		rec := domain.ReputationRecord{
			Score:      sc.Initial,
			LoansTaken: len(taken),
			UpdatedAt:  now,
		}
		for _, l := range repaid {
			rec.Score = sc.Apply(rec.Score, l.Status)
			if l.Status == domain.StatusRepaidOnTime {
				rec.LoansRepaidOnTime++
			} else {
				rec.LoansRepaidLate++
			}
		}
		out[borrower] = rec
	}
	return out
}

// sameRecord compares records ignoring UpdatedAt.
func sameRecord(a, b domain.ReputationRecord) bool {
	return a.Score == b.Score &&
		a.LoansTaken == b.LoansTaken &&
		a.LoansRepaidOnTime == b.LoansRepaidOnTime &&
		a.LoansRepaidLate == b.LoansRepaidLate
}
