package dto

import (
	"time"

	"settlement-gateway/internal/core/domain"
	"settlement-gateway/internal/core/ports"
)

// AdminLoginRequest is the request body for operator login.
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Password string `json:"password" binding:"required,max=128"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// CreateMerchantRequest is the request body for merchant registration.
type CreateMerchantRequest struct {
	ID         string  `json:"merchant_id" binding:"omitempty,max=64,safe_id"`
	Name       string  `json:"name" binding:"required,min=1,max=100"`
	WebhookURL *string `json:"webhook_url,omitempty" binding:"omitempty,max=2048,safe_url"`
}

// CreateMerchantResponse carries the key pair; the secret is never shown again.
type CreateMerchantResponse struct {
	MerchantID string  `json:"merchant_id"`
	Name       string  `json:"name"`
	AccessKey  string  `json:"access_key"`
	SecretKey  string  `json:"secret_key"`
	WebhookURL *string `json:"webhook_url,omitempty"`
	Status     string  `json:"status"`
	CreatedAt  string  `json:"created_at"`
}

// CreatePaymentRequest is the request body for registering an inbound charge.
type CreatePaymentRequest struct {
	PaymentID     string  `json:"payment_id" binding:"omitempty,max=100,safe_id"`
	GrossAmount   string  `json:"gross_amount" binding:"required,decimal_amount"`
	GrossCurrency string  `json:"gross_currency" binding:"required,len=3,alpha"`
	LedgerAmount  *string `json:"ledger_amount,omitempty" binding:"omitempty,decimal_amount"`
}

// PixWebhookRequest is the payment rail's notification that a charge was paid.
type PixWebhookRequest struct {
	PaymentID string `json:"payment_id" binding:"required,max=100,safe_id"`
	Status    string `json:"status" binding:"required,oneof=PAID paid"`
}

// PaymentResponse is the response body for a payment.
type PaymentResponse struct {
	ID            string  `json:"id"`
	MerchantID    string  `json:"merchant_id"`
	GrossAmount   string  `json:"gross_amount"`
	GrossCurrency string  `json:"gross_currency"`
	LedgerAmount  string  `json:"ledger_amount"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"created_at"`
	PaidAt        *string `json:"paid_at,omitempty"`
}

// ConfirmResponse is returned by the PIX webhook.
type ConfirmResponse struct {
	Payment  PaymentResponse `json:"payment"`
	Balance  string          `json:"balance"`
	Credited bool            `json:"credited"`
}

// WithdrawalRequest is the request body for a merchant withdrawal.
type WithdrawalRequest struct {
	Amount             string `json:"amount" binding:"required,decimal_amount"`
	DestinationAddress string `json:"destination_address" binding:"omitempty,evm_address"`
}

// RejectWithdrawalRequest is the optional body of an admin rejection.
type RejectWithdrawalRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=200"`
}

// WithdrawalResponse is the response body for a withdrawal.
type WithdrawalResponse struct {
	ID                 string  `json:"id"`
	MerchantID         string  `json:"merchant_id"`
	Amount             string  `json:"amount"`
	DestinationAddress string  `json:"destination_address,omitempty"`
	Status             string  `json:"status"`
	RejectionReason    *string `json:"rejection_reason,omitempty"`
	CreatedAt          string  `json:"created_at"`
	DecidedAt          *string `json:"decided_at,omitempty"`
}

// WithdrawalListQuery holds the query string of withdrawal listings.
type WithdrawalListQuery struct {
	MerchantID string `form:"merchant_id" binding:"omitempty,max=64,safe_id"`
	Status     string `form:"status" binding:"omitempty,oneof=REQUESTED PAID REJECTED"`
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// LedgerQuery holds the cursor of a ledger export.
type LedgerQuery struct {
	AfterSeq int64 `form:"after_seq" binding:"omitempty,min=0"`
	Limit    int   `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// BalanceResponse is the response for balance queries.
type BalanceResponse struct {
	MerchantID string `json:"merchant_id"`
	Asset      string `json:"asset"`
	Balance    string `json:"balance"`
	Reserved   string `json:"reserved"`
	Available  string `json:"available"`
}

// LedgerEntryResponse is one exported ledger entry.
type LedgerEntryResponse struct {
	Seq       int64  `json:"seq"`
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
	CreatedAt string `json:"created_at"`
}

// NewPaymentResponse converts a domain payment.
func NewPaymentResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		MerchantID:    p.MerchantID,
		GrossAmount:   p.GrossAmount.String(),
		GrossCurrency: p.GrossCurrency,
		LedgerAmount:  p.LedgerAmount.String(),
		Status:        string(p.Status),
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
		PaidAt:        formatTime(p.PaidAt),
	}
}

// NewWithdrawalResponse converts a domain withdrawal.
func NewWithdrawalResponse(w *domain.Withdrawal) WithdrawalResponse {
	return WithdrawalResponse{
		ID:                 w.ID.String(),
		MerchantID:         w.MerchantID,
		Amount:             w.Amount.String(),
		DestinationAddress: w.DestinationAddress,
		Status:             string(w.Status),
		RejectionReason:    w.RejectionReason,
		CreatedAt:          w.CreatedAt.Format(time.RFC3339),
		DecidedAt:          formatTime(w.DecidedAt),
	}
}

// NewWithdrawalList converts a page of withdrawals.
func NewWithdrawalList(items []domain.Withdrawal) []WithdrawalResponse {
	out := make([]WithdrawalResponse, 0, len(items))
	for i := range items {
		out = append(out, NewWithdrawalResponse(&items[i]))
	}
	return out
}

// NewBalanceResponse converts a balance summary.
func NewBalanceResponse(b *ports.BalanceSummary) BalanceResponse {
	return BalanceResponse{
		MerchantID: b.MerchantID,
		Asset:      b.Asset,
		Balance:    b.Balance.String(),
		Reserved:   b.Reserved.String(),
		Available:  b.Available.String(),
	}
}

// NewLedgerEntries converts ledger entries.
func NewLedgerEntries(entries []domain.LedgerEntry) []LedgerEntryResponse {
	out := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, LedgerEntryResponse{
			Seq:       e.Seq,
			ID:        e.ID.String(),
			Kind:      string(e.Kind),
			Amount:    e.Amount.String(),
			Reference: e.Reference,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
