package postgres

import (
	"context"
	"fmt"

	"settlement-gateway/internal/core/domain"
)

// WebhookRepo implements ports.WebhookRepository.
type WebhookRepo struct {
	pool Pool
}

// NewWebhookRepo creates a new WebhookRepo.
func NewWebhookRepo(pool Pool) *WebhookRepo {
	return &WebhookRepo{pool: pool}
}

// Create records one delivery attempt.
func (r *WebhookRepo) Create(ctx context.Context, l *domain.WebhookDeliveryLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO webhook_deliveries
		(id, merchant_id, event, resource_id, webhook_url, payload, http_status, attempt, status, last_error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10, $11)`,
		l.ID, l.MerchantID, string(l.Event), l.ResourceID, l.WebhookURL,
		l.Payload, l.HTTPStatus, l.Attempt, string(l.Status), l.LastError, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}
