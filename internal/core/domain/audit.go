package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionCreateMerchant    AuditAction = "CREATE_MERCHANT"
	AuditActionAdminLogin        AuditAction = "ADMIN_LOGIN"
	AuditActionCreatePayment     AuditAction = "CREATE_PAYMENT"
	AuditActionConfirmPayment    AuditAction = "CONFIRM_PAYMENT"
	AuditActionRequestWithdrawal AuditAction = "REQUEST_WITHDRAWAL"
	AuditActionApproveWithdrawal AuditAction = "APPROVE_WITHDRAWAL"
	AuditActionRejectWithdrawal  AuditAction = "REJECT_WITHDRAWAL"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	MerchantID   *string     `json:"merchant_id,omitempty"`
	Actor        string      `json:"actor"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
