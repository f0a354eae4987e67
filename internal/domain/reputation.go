package domain

import "time"

// ReputationRecord is the derived trust record of one borrower.
type ReputationRecord struct {
	Score             int       `json:"score"`
	LoansTaken        int       `json:"loansTaken"`
	LoansRepaidOnTime int       `json:"loansRepaidOnTime"`
	LoansRepaidLate   int       `json:"loansRepaidLate"`
	UpdatedAt         time.Time `json:"updatedAt"`
}
