package domain

import "errors"

var (
	ErrInvalidTerms          = errors.New("invalid loan terms")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrDuplicateLoanID       = errors.New("loan id already exists")
	ErrLoanNotFound          = errors.New("loan not found")
	ErrLoanNotOpen           = errors.New("loan is not open for funding")
	ErrOverfundingRejected   = errors.New("contribution exceeds remaining capacity")
	ErrSelfFunding           = errors.New("borrower cannot fund own loan")
	ErrTooManyLenders        = errors.New("loan has reached the maximum number of lenders")
	ErrInsufficientFunds     = errors.New("insufficient account balance")
	ErrInsufficientRepayment = errors.New("repayment below required amount")
	ErrLoanNotFunded         = errors.New("loan is not funded")
	ErrUnauthorized          = errors.New("caller is not authorized for this operation")
	ErrNotFound              = errors.New("not found")
	ErrUnknownStatus         = errors.New("unknown loan status")
	ErrUnknownTransferKind   = errors.New("unknown transfer kind")
	ErrAccountKindMismatch   = errors.New("account is not of the expected kind")
	ErrVaultIntegrity        = errors.New("escrow balance does not match the loan")
)

// IsRetryable reports whether a client may retry the failed operation.
// Signer mismatches never succeed on retry.
func IsRetryable(err error) bool {
	return !errors.Is(err, ErrUnauthorized) && !errors.Is(err, ErrSelfFunding)
}
