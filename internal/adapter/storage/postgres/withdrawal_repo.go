package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"settlement-gateway/internal/core/domain"
	"settlement-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const withdrawalColumns = `id, merchant_id, amount::text, destination_address, status, rejection_reason, created_at, decided_at`

// WithdrawalRepo implements ports.WithdrawalRepository.
type WithdrawalRepo struct {
	pool Pool
}

// NewWithdrawalRepo creates a new WithdrawalRepo.
func NewWithdrawalRepo(pool Pool) *WithdrawalRepo {
	return &WithdrawalRepo{pool: pool}
}

// Create inserts a REQUESTED withdrawal within a transaction.
func (r *WithdrawalRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Withdrawal) error {
	query := `INSERT INTO withdrawals (id, merchant_id, amount, destination_address, status, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)`

	_, err := tx.Exec(ctx, query,
		w.ID, w.MerchantID, w.Amount.String(), w.DestinationAddress, w.Status, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

// GetByID fetches a withdrawal by id.
func (r *WithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`
	w, err := scanWithdrawal(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get withdrawal by id: %w", err)
	}
	return w, nil
}

// GetByIDForUpdate fetches a withdrawal with a row lock.
// This MUST be called within a transaction.
func (r *WithdrawalRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1 FOR UPDATE`
	w, err := scanWithdrawal(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get withdrawal for update: %w", err)
	}
	return w, nil
}

// UpdateStatus moves a REQUESTED withdrawal to status.
func (r *WithdrawalRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.WithdrawalStatus, reason *string, decidedAt time.Time) error {
	query := `UPDATE withdrawals SET status = $1, rejection_reason = $2, decided_at = $3
		WHERE id = $4 AND status = $5`

	tag, err := tx.Exec(ctx, query, status, reason, decidedAt, id, domain.WithdrawalStatusRequested)
	if err != nil {
		return fmt.Errorf("update withdrawal status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("withdrawal %s is not %s", id, domain.WithdrawalStatusRequested)
	}
	return nil
}

// SumRequested totals the merchant's REQUESTED withdrawals. tx may be nil.
func (r *WithdrawalRepo) SumRequested(ctx context.Context, tx pgx.Tx, merchantID string) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0)::text FROM withdrawals WHERE merchant_id = $1 AND status = $2`

	var total decimal.Decimal
	err := on(r.pool, tx).QueryRow(ctx, query, merchantID, domain.WithdrawalStatusRequested).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum requested withdrawals: %w", err)
	}
	return total, nil
}

// List fetches withdrawals with filtering and pagination, newest first.
func (r *WithdrawalRepo) List(ctx context.Context, params ports.WithdrawalListParams) ([]domain.Withdrawal, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.MerchantID != nil {
		conditions = append(conditions, fmt.Sprintf("merchant_id = $%d", argIdx))
		args = append(args, *params.MerchantID)
		argIdx++
	}
	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM withdrawals %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count withdrawals: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM withdrawals %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, withdrawalColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list withdrawals: %w", err)
	}
	defer rows.Close()

	var out []domain.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan withdrawal row: %w", err)
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate withdrawal rows: %w", err)
	}
	return out, total, nil
}

func scanWithdrawal(row pgx.Row) (*domain.Withdrawal, error) {
	w := &domain.Withdrawal{}
	err := row.Scan(
		&w.ID, &w.MerchantID, &w.Amount, &w.DestinationAddress, &w.Status,
		&w.RejectionReason, &w.CreatedAt, &w.DecidedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}
