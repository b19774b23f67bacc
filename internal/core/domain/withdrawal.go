package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalStatus is the settlement state of a withdrawal.
type WithdrawalStatus string

const (
	WithdrawalStatusRequested WithdrawalStatus = "REQUESTED"
	WithdrawalStatusPaid      WithdrawalStatus = "PAID"
	WithdrawalStatusRejected  WithdrawalStatus = "REJECTED"
)

// Rejection reasons recorded on REJECTED withdrawals.
const (
	RejectReasonInsufficientBalance = "insufficient_balance"
	RejectReasonManual              = "rejected_by_operator"
)

// Withdrawal is an outbound request against a merchant's balance.
type Withdrawal struct {
	ID                 uuid.UUID        `json:"id"`
	MerchantID         string           `json:"merchant_id"`
	Amount             decimal.Decimal  `json:"amount"`
	DestinationAddress string           `json:"destination_address,omitempty"`
	Status             WithdrawalStatus `json:"status"`
	RejectionReason    *string          `json:"rejection_reason,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	DecidedAt          *time.Time       `json:"decided_at,omitempty"`
}

// IsTerminal returns true once the withdrawal is PAID or REJECTED.
func (w *Withdrawal) IsTerminal() bool {
	return w.Status == WithdrawalStatusPaid || w.Status == WithdrawalStatusRejected
}

// ValidWithdrawalStatus reports whether s names a known state.
func ValidWithdrawalStatus(s string) bool {
	switch WithdrawalStatus(s) {
	case WithdrawalStatusRequested, WithdrawalStatusPaid, WithdrawalStatusRejected:
		return true
	}
	return false
}
