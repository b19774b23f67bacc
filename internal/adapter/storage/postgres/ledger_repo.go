package postgres

import (
	"context"
	"errors"
	"fmt"

	"settlement-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const ledgerColumns = `seq, id, merchant_id, kind, amount::text, reference, created_at`

// LedgerRepo implements ports.LedgerRepository over the append-only
// ledger_entries table.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Append inserts entry inside tx. When (merchant_id, kind, reference) is
// already taken the stored entry is returned with created=false.
func (r *LedgerRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) (*domain.LedgerEntry, bool, error) {
	if tx == nil {
		return nil, false, fmt.Errorf("ledger append requires a transaction")
	}

	query := `INSERT INTO ledger_entries (id, merchant_id, kind, amount, reference, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
		ON CONFLICT (merchant_id, kind, reference) DO NOTHING
		RETURNING seq`

	var seq int64
	err := tx.QueryRow(ctx, query,
		e.ID, e.MerchantID, e.Kind, e.Amount.String(), e.Reference, e.CreatedAt,
	).Scan(&seq)
	if err == nil {
		stored := *e
		stored.Seq = seq
		return &stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert ledger entry: %w", err)
	}

	existing, err := scanLedgerEntry(tx.QueryRow(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE merchant_id = $1 AND kind = $2 AND reference = $3`,
		e.MerchantID, e.Kind, e.Reference,
	))
	if err != nil {
		return nil, false, fmt.Errorf("get existing ledger entry: %w", err)
	}
	if existing == nil {
		return nil, false, fmt.Errorf("ledger entry %s/%s/%s conflicted but is not visible", e.MerchantID, e.Kind, e.Reference)
	}
	return existing, false, nil
}

// Balance computes the signed sum of the merchant's entries in one statement.
// tx may be nil; inside a transaction the result includes its own appends.
func (r *LedgerRepo) Balance(ctx context.Context, tx pgx.Tx, merchantID string) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(CASE WHEN kind = 'CREDIT' THEN amount ELSE -amount END), 0)::text
		FROM ledger_entries WHERE merchant_id = $1`

	var balance decimal.Decimal
	if err := on(r.pool, tx).QueryRow(ctx, query, merchantID).Scan(&balance); err != nil {
		return decimal.Zero, fmt.Errorf("compute balance: %w", err)
	}
	return balance, nil
}

// EntriesFor returns up to limit entries after the afterSeq cursor, oldest first.
func (r *LedgerRepo) EntriesFor(ctx context.Context, merchantID string, afterSeq int64, limit int) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE merchant_id = $1 AND seq > $2 ORDER BY seq ASC LIMIT $3`

	rows, err := r.pool.Query(ctx, query, merchantID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, limit)
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	e := &domain.LedgerEntry{}
	err := row.Scan(&e.Seq, &e.ID, &e.MerchantID, &e.Kind, &e.Amount, &e.Reference, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}
