package domain

import (
	"fmt"
	"time"
)

// LoanStatus is the lifecycle state of a loan. The zero value is not a valid
// status.
type LoanStatus string

const (
	StatusOpen         LoanStatus = "open"
	StatusFunded       LoanStatus = "funded"
	StatusRepaidOnTime LoanStatus = "repaid_on_time"
	StatusRepaidLate   LoanStatus = "repaid_late"
	StatusDefaulted    LoanStatus = "defaulted"
)

// ParseLoanStatus converts a stored or wire value into a LoanStatus.
func ParseLoanStatus(s string) (LoanStatus, error) {
	switch st := LoanStatus(s); st {
	case StatusOpen, StatusFunded, StatusRepaidOnTime, StatusRepaidLate, StatusDefaulted:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

func (s LoanStatus) String() string { return string(s) }

// IsTerminal reports whether no further transition can leave s.
func (s LoanStatus) IsTerminal() bool {
	switch s {
	case StatusRepaidOnTime, StatusRepaidLate, StatusDefaulted:
		return true
	}
	return false
}

// IsRepaid reports whether s is one of the repaid states.
func (s LoanStatus) IsRepaid() bool {
	return s == StatusRepaidOnTime || s == StatusRepaidLate
}

// CanTransition reports whether a stored status may move from s to next.
// Open -> Funded -> {RepaidOnTime, RepaidLate}. Defaulted is never stored by
// the lifecycle operations; it only appears as a display status.
func (s LoanStatus) CanTransition(next LoanStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusOpen:
		return next == StatusFunded
	case StatusFunded:
		return next == StatusRepaidOnTime || next == StatusRepaidLate
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (s LoanStatus) MarshalText() ([]byte, error) {
	if _, err := ParseLoanStatus(string(s)); err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and rejects unknown
// variants instead of defaulting.
func (s *LoanStatus) UnmarshalText(b []byte) error {
	st, err := ParseLoanStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ClassifyRepayment returns the terminal status for a repayment made at now.
// Repaying exactly at the due timestamp is on time.
func ClassifyRepayment(now, due int64) LoanStatus {
	if now <= due {
		return StatusRepaidOnTime
	}
	return StatusRepaidLate
}

// DisplayStatus resolves the status shown to clients. A funded loan past its
// due time is reported as defaulted; the stored status is unchanged.
func DisplayStatus(l *Loan, now time.Time) LoanStatus {
	if l.Status == StatusFunded && now.Unix() > l.DueTimestamp {
		return StatusDefaulted
	}
	return l.Status
}
