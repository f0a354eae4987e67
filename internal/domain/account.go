package domain

import (
	"fmt"
	"strings"
	"time"
)

type AccountKind string

const (
	AccountWallet AccountKind = "wallet"
	AccountVault  AccountKind = "vault"
)

// VaultPrefix marks vault account ids. Caller identities may not use it.
const VaultPrefix = "escrow:"

// AccountKindOf returns the kind of account an id addresses.
func AccountKindOf(id string) AccountKind {
	if IsReservedIdentity(id) {
		return AccountVault
	}
	return AccountWallet
}

// IsReservedIdentity reports whether id lies in the vault namespace.
func IsReservedIdentity(id string) bool {
	return strings.HasPrefix(id, VaultPrefix)
}

// Account is a value-holding ledger account. Vault accounts carry the loan
// they are bound to.
type Account struct {
	ID        string      `json:"id"`
	Kind      AccountKind `json:"kind"`
	LoanID    string      `json:"loanId,omitempty"`
	Balance   uint64      `json:"balance"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type TransferKind string

const (
	TransferDeposit  TransferKind = "deposit"
	TransferFund     TransferKind = "fund"
	TransferDisburse TransferKind = "disburse"
	TransferRepay    TransferKind = "repay"
	TransferPayout   TransferKind = "payout"
)

// Transfer is one journaled value movement. From is empty for deposits.
type Transfer struct {
	ID         int64        `json:"id"`
	Kind       TransferKind `json:"kind"`
	LoanID     string       `json:"loanId,omitempty"`
	From       string       `json:"from,omitempty"`
	To         string       `json:"to"`
	Amount     uint64       `json:"amount"`
	OccurredAt time.Time    `json:"occurredAt"`
}

// Payout is one lender's share of a repayment.
type Payout struct {
	Lender string `json:"lender"`
	Amount uint64 `json:"amount"`
}

// ParseTransferKind converts a wire value into a TransferKind.
func ParseTransferKind(s string) (TransferKind, error) {
	switch k := TransferKind(s); k {
	case TransferDeposit, TransferFund, TransferDisburse, TransferRepay, TransferPayout:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTransferKind, s)
}
