package ports

import (
	"context"
	"errors"
	"time"

	"settlement-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrConflict is returned by repositories when a unique key is already taken.
var ErrConflict = errors.New("unique key conflict")

// MerchantRepository defines persistence operations for merchants.
type MerchantRepository interface {
	Create(ctx context.Context, merchant *domain.Merchant) error
	GetByID(ctx context.Context, id string) (*domain.Merchant, error)
	GetByAccessKey(ctx context.Context, accessKey string) (*domain.Merchant, error)
}

// PaymentRepository persists inbound charges.
type PaymentRepository interface {
	// Create inserts a PENDING payment. It returns false when a payment with
	// the same id already exists, leaving the stored row untouched.
	Create(ctx context.Context, payment *domain.Payment) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	// MarkPaid moves a PENDING payment to PAID. It returns false when the
	// payment was no longer PENDING.
	MarkPaid(ctx context.Context, tx pgx.Tx, id string, paidAt time.Time) (bool, error)
}

// WithdrawalRepository persists withdrawals and their state transitions.
type WithdrawalRepository interface {
	Create(ctx context.Context, tx pgx.Tx, withdrawal *domain.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Withdrawal, error)
	// UpdateStatus transitions a REQUESTED withdrawal to a terminal state.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.WithdrawalStatus, reason *string, decidedAt time.Time) error
	// SumRequested returns the total amount reserved by REQUESTED withdrawals.
	SumRequested(ctx context.Context, tx pgx.Tx, merchantID string) (decimal.Decimal, error)
	List(ctx context.Context, params WithdrawalListParams) ([]domain.Withdrawal, int64, error)
}

// WithdrawalListParams holds filter + pagination for listing withdrawals.
type WithdrawalListParams struct {
	MerchantID *string
	Status     *domain.WithdrawalStatus
	Page       int
	PageSize   int
}

// LedgerRepository is the append-only ledger store.
//
// Append is idempotent on (merchant_id, kind, reference): when an entry with
// the same key exists it is returned with created=false and nothing is
// written. Balance accepts a nil tx for reads outside a transaction; inside a
// transaction it sees the transaction's own appends.
type LedgerRepository interface {
	Append(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) (*domain.LedgerEntry, bool, error)
	Balance(ctx context.Context, tx pgx.Tx, merchantID string) (decimal.Decimal, error)
	// EntriesFor returns up to limit entries with seq > afterSeq in seq order.
	EntriesFor(ctx context.Context, merchantID string, afterSeq int64, limit int) ([]domain.LedgerEntry, error)
}

// IdempotencyRepository defines persistence for idempotency records (DB backup).
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, record *domain.IdempotencyRecord) error
	Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
}

// AuditRepository persists audit logs.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// WebhookRepository persists webhook delivery attempts.
type WebhookRepository interface {
	Create(ctx context.Context, log *domain.WebhookDeliveryLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// MerchantGuard serializes balance-affecting work for one merchant.
// Lock blocks until the merchant is free and holds it until tx ends.
type MerchantGuard interface {
	Lock(ctx context.Context, tx pgx.Tx, merchantID string) error
}
