package ports

import (
	"context"
	"time"

	"settlement-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EncryptionService seals secrets at rest with AES-256-GCM.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// Token roles.
const (
	RoleAdmin = "admin"
)

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(subject string, role string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
	Role    string
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NonceStore manages nonce uniqueness for replay attack prevention.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, merchantID string, nonce string, ttl time.Duration) (bool, error)
}

// RateLimitStore counts requests per key in fixed windows.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// RateProvider converts a source-currency amount into the settlement asset.
type RateProvider interface {
	Convert(ctx context.Context, amount decimal.Decimal, currency string) (decimal.Decimal, error)
}

// --- Service Ports (Business Logic) ---

// MerchantService registers merchants (account-management collaborator).
type MerchantService interface {
	CreateMerchant(ctx context.Context, req CreateMerchantRequest) (*CreateMerchantResponse, error)
	GetMerchant(ctx context.Context, id string) (*domain.Merchant, error)
}

// CreateMerchantRequest holds input for merchant registration.
type CreateMerchantRequest struct {
	ID         string
	Name       string
	WebhookURL *string
}

// CreateMerchantResponse holds the registration result shown once.
type CreateMerchantResponse struct {
	Merchant  *domain.Merchant
	AccessKey string
	SecretKey string // Plaintext, shown only at registration
}

// PaymentService creates charges and confirms them into ledger credits.
type PaymentService interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*domain.Payment, error)
	Confirm(ctx context.Context, paymentID string) (*ConfirmResult, error)
	GetPayment(ctx context.Context, merchantID, paymentID string) (*domain.Payment, error)
}

// CreatePaymentRequest holds validated input for a new charge.
// An empty ID lets the service generate one; a nil LedgerAmount is derived
// from GrossAmount through the rate provider.
type CreatePaymentRequest struct {
	ID            string
	MerchantID    string
	GrossAmount   decimal.Decimal
	GrossCurrency string
	LedgerAmount  *decimal.Decimal
}

// ConfirmResult is the outcome of a payment confirmation.
type ConfirmResult struct {
	Payment *domain.Payment
	Balance decimal.Decimal
	// Credited is false when the payment had already been confirmed.
	Credited bool
}

// WithdrawalService drives the withdrawal settlement state machine.
type WithdrawalService interface {
	Request(ctx context.Context, req WithdrawalRequest) (*domain.Withdrawal, error)
	Approve(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error)
	Reject(ctx context.Context, id uuid.UUID, reason string) (*domain.Withdrawal, error)
	// Get returns a withdrawal; a non-empty merchantID restricts it to that owner.
	Get(ctx context.Context, merchantID string, id uuid.UUID) (*domain.Withdrawal, error)
	List(ctx context.Context, params WithdrawalListParams) ([]domain.Withdrawal, int64, error)
}

// WithdrawalRequest holds validated input for a withdrawal request.
type WithdrawalRequest struct {
	MerchantID         string
	Amount             decimal.Decimal
	DestinationAddress string
	IdempotencyKey     string // optional client-supplied key
}

// LedgerService exposes balances and ledger history.
type LedgerService interface {
	GetBalance(ctx context.Context, merchantID string) (*BalanceSummary, error)
	GetLedger(ctx context.Context, merchantID string, afterSeq int64, limit int) ([]domain.LedgerEntry, error)
}

// BalanceSummary is a merchant's balance at one point in time.
type BalanceSummary struct {
	MerchantID string
	Asset      string
	Balance    decimal.Decimal
	Reserved   decimal.Decimal // held by REQUESTED withdrawals
	Available  decimal.Decimal
}

// AuthService authenticates operators for the admin API.
type AuthService interface {
	AdminLogin(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}

// WebhookService defines async webhook delivery to merchants.
type WebhookService interface {
	Enqueue(ctx context.Context, merchantID string, event domain.WebhookEvent, resourceID string, data any) error
}

// AuditService records audit entries.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
