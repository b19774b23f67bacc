package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryKind is the direction of a ledger entry.
type EntryKind string

const (
	EntryCredit EntryKind = "CREDIT"
	EntryDebit  EntryKind = "DEBIT"
)

// LedgerEntry is an immutable monetary fact attributed to a merchant.
// Amount is always positive; Kind carries the sign. Reference is the
// payment or withdrawal id and is unique per (MerchantID, Kind).
type LedgerEntry struct {
	Seq        int64           `json:"seq"`
	ID         uuid.UUID       `json:"id"`
	MerchantID string          `json:"merchant_id"`
	Kind       EntryKind       `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Signed returns the entry amount with the sign implied by its kind.
func (e *LedgerEntry) Signed() decimal.Decimal {
	if e.Kind == EntryDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// Replay folds entries into a balance.
func Replay(entries []LedgerEntry) decimal.Decimal {
	total := decimal.Zero
	for i := range entries {
		total = total.Add(entries[i].Signed())
	}
	return total
}

// NewLedgerEntry builds an unsaved entry.
func NewLedgerEntry(merchantID string, kind EntryKind, amount decimal.Decimal, reference string) *LedgerEntry {
	return &LedgerEntry{
		ID:         uuid.New(),
		MerchantID: merchantID,
		Kind:       kind,
		Amount:     amount,
		Reference:  reference,
		CreatedAt:  time.Now().UTC(),
	}
}
