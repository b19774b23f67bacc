package postgres

import (
	"context"
	"errors"
	"fmt"

	"settlement-gateway/internal/core/domain"
	"settlement-gateway/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

const merchantColumns = `id, name, access_key, secret_key_enc, webhook_url, status, created_at, updated_at`

// MerchantRepo implements ports.MerchantRepository.
type MerchantRepo struct {
	pool Pool
}

// NewMerchantRepo creates a new MerchantRepo.
func NewMerchantRepo(pool Pool) *MerchantRepo {
	return &MerchantRepo{pool: pool}
}

// Create inserts a new merchant into the database.
func (r *MerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	query := `INSERT INTO merchants (` + merchantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.Name, m.AccessKey, m.SecretKeyEnc, m.WebhookURL, m.Status,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if hasSQLState(err, sqlstateUniqueViolation) {
			return fmt.Errorf("insert merchant %s: %w", m.ID, ports.ErrConflict)
		}
		return fmt.Errorf("insert merchant: %w", err)
	}
	return nil
}

// GetByID fetches a merchant by id.
func (r *MerchantRepo) GetByID(ctx context.Context, id string) (*domain.Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE id = $1`
	m, err := scanMerchant(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get merchant by id: %w", err)
	}
	return m, nil
}

// GetByAccessKey fetches a merchant by its public access key.
func (r *MerchantRepo) GetByAccessKey(ctx context.Context, accessKey string) (*domain.Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE access_key = $1`
	m, err := scanMerchant(r.pool.QueryRow(ctx, query, accessKey))
	if err != nil {
		return nil, fmt.Errorf("get merchant by access_key: %w", err)
	}
	return m, nil
}

func scanMerchant(row pgx.Row) (*domain.Merchant, error) {
	m := &domain.Merchant{}
	err := row.Scan(
		&m.ID, &m.Name, &m.AccessKey, &m.SecretKeyEnc, &m.WebhookURL, &m.Status,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}
