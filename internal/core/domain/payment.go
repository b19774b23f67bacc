package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of an inbound charge.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

// Payment is an inbound fiat charge. GrossAmount is in the source currency,
// LedgerAmount in the settlement asset credited once the payment is PAID.
type Payment struct {
	ID            string          `json:"id"`
	MerchantID    string          `json:"merchant_id"`
	GrossAmount   decimal.Decimal `json:"gross_amount"`
	GrossCurrency string          `json:"gross_currency"`
	LedgerAmount  decimal.Decimal `json:"ledger_amount"`
	Status        PaymentStatus   `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
}

// IsPaid reports whether the payment reached its terminal state.
func (p *Payment) IsPaid() bool {
	return p.Status == PaymentStatusPaid
}

// SameCharge reports whether other describes the same charge as p.
// Used to tell an idempotent re-notification from a conflicting one.
func (p *Payment) SameCharge(other *Payment) bool {
	return p.MerchantID == other.MerchantID &&
		p.GrossAmount.Equal(other.GrossAmount) &&
		p.LedgerAmount.Equal(other.LedgerAmount)
}
