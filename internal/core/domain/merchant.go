package domain

import (
	"time"
)

// MerchantStatus represents the state of a merchant account.
type MerchantStatus string

const (
	MerchantStatusActive      MerchantStatus = "ACTIVE"
	MerchantStatusSuspended   MerchantStatus = "SUSPENDED"
	MerchantStatusDeactivated MerchantStatus = "DEACTIVATED"
)

// Merchant is the identity every ledger entry, payment and withdrawal is keyed on.
// The ID is chosen by account management and never changes.
type Merchant struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	AccessKey    string         `json:"access_key"`
	SecretKeyEnc string         `json:"-"` // sealed HMAC secret
	WebhookURL   *string        `json:"webhook_url,omitempty"`
	Status       MerchantStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// IsActive returns true if the merchant account is active.
func (m *Merchant) IsActive() bool {
	return m.Status == MerchantStatusActive
}
