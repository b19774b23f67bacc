package domain

import (
	"time"
)

// IdempotencyRecord stores the result of a request-level idempotent operation
// so a retried request replays it instead of executing twice.
type IdempotencyRecord struct {
	Key          string    `json:"key"` // Format: "merchant_id:scope:client_key"
	ResourceID   string    `json:"resource_id"`
	ResponseJSON []byte    `json:"response_json"`
	CreatedAt    time.Time `json:"created_at"`
}

// BuildWithdrawalIdempotencyKey scopes a client-supplied key to a merchant.
func BuildWithdrawalIdempotencyKey(merchantID, clientKey string) string {
	return merchantID + ":withdrawal:" + clientKey
}
