package postgres

import (
	"context"
	"testing"
	"time"

	"settlement-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepo(mock)
	merchantID := "merchant-1"
	entry := &domain.AuditLog{
		ID:           uuid.New(),
		MerchantID:   &merchantID,
		Actor:        "admin",
		Action:       domain.AuditActionApproveWithdrawal,
		ResourceType: "withdrawal",
		ResourceID:   uuid.NewString(),
		Details:      `{"status":200}`,
		IPAddress:    "10.0.0.1",
		CreatedAt:    time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.ID, entry.MerchantID, "admin", "APPROVE_WITHDRAWAL", "withdrawal",
			entry.ResourceID, &entry.Details, "10.0.0.1", entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepo_Create_EmptyDetails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepo(mock)
	entry := &domain.AuditLog{
		ID:           uuid.New(),
		Actor:        "admin",
		Action:       domain.AuditActionAdminLogin,
		ResourceType: "session",
		CreatedAt:    time.Now().UTC(),
	}

	var noDetails *string
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.ID, entry.MerchantID, "admin", "ADMIN_LOGIN", "session", "", noDetails, "", entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepo(mock)
	status := 200
	l := &domain.WebhookDeliveryLog{
		ID:         uuid.New(),
		MerchantID: "merchant-1",
		Event:      domain.WebhookEventPaymentPaid,
		ResourceID: "pay-001",
		WebhookURL: "https://example.com/hook",
		Payload:    `{"event":"PAYMENT_PAID"}`,
		HTTPStatus: &status,
		Attempt:    1,
		Status:     domain.WebhookStatusDelivered,
		CreatedAt:  time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO webhook_deliveries").
		WithArgs(l.ID, l.MerchantID, "PAYMENT_PAID", l.ResourceID, l.WebhookURL,
			l.Payload, l.HTTPStatus, 1, "DELIVERED", l.LastError, l.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), l))
	assert.NoError(t, mock.ExpectationsWereMet())
}
