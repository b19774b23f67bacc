package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlement-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const paymentColumns = `id, merchant_id, gross_amount::text, gross_currency, ledger_amount::text, status, created_at, paid_at`

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// Create inserts a PENDING payment. An existing id is left untouched and
// reported with created=false.
func (r *PaymentRepo) Create(ctx context.Context, p *domain.Payment) (bool, error) {
	query := `INSERT INTO payments (id, merchant_id, gross_amount, gross_currency, ledger_amount, status, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5::numeric, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		p.ID, p.MerchantID, p.GrossAmount.String(), p.GrossCurrency,
		p.LedgerAmount.String(), p.Status, p.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert payment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByID fetches a payment by id.
func (r *PaymentRepo) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := scanPayment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get payment by id: %w", err)
	}
	return p, nil
}

// MarkPaid moves a PENDING payment to PAID. It reports false when another
// transaction got there first.
func (r *PaymentRepo) MarkPaid(ctx context.Context, tx pgx.Tx, id string, paidAt time.Time) (bool, error) {
	query := `UPDATE payments SET status = $1, paid_at = $2 WHERE id = $3 AND status = $4`

	tag, err := tx.Exec(ctx, query, domain.PaymentStatusPaid, paidAt, id, domain.PaymentStatusPending)
	if err != nil {
		return false, fmt.Errorf("mark payment paid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := row.Scan(
		&p.ID, &p.MerchantID, &p.GrossAmount, &p.GrossCurrency, &p.LedgerAmount,
		&p.Status, &p.CreatedAt, &p.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}
