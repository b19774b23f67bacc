package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent names the merchant notifications emitted by the core.
type WebhookEvent string

const (
	WebhookEventPaymentPaid        WebhookEvent = "PAYMENT_PAID"
	WebhookEventWithdrawalPaid     WebhookEvent = "WITHDRAWAL_PAID"
	WebhookEventWithdrawalRejected WebhookEvent = "WITHDRAWAL_REJECTED"
)

// WebhookStatus represents the delivery state of a webhook.
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "PENDING"
	WebhookStatusDelivered WebhookStatus = "DELIVERED"
	WebhookStatusFailed    WebhookStatus = "FAILED"
)

// WebhookDeliveryLog records each webhook delivery attempt.
type WebhookDeliveryLog struct {
	ID         uuid.UUID     `json:"id"`
	MerchantID string        `json:"merchant_id"`
	Event      WebhookEvent  `json:"event"`
	ResourceID string        `json:"resource_id"`
	WebhookURL string        `json:"webhook_url"`
	Payload    string        `json:"payload"`
	HTTPStatus *int          `json:"http_status"`
	Attempt    int           `json:"attempt"`
	Status     WebhookStatus `json:"status"`
	LastError  *string       `json:"last_error"`
	CreatedAt  time.Time     `json:"created_at"`
}
