package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"settlement-gateway/internal/core/domain"
	"settlement-gateway/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestAuditService_Log_PersistsToRepo(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	var got *domain.AuditLog
	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, entry *domain.AuditLog) error {
			got = entry
			return nil
		},
	)

	merchantID := "m_1"
	svc.Log(context.Background(), &domain.AuditLog{
		MerchantID:   &merchantID,
		Actor:        "merchant:m_1",
		Action:       domain.AuditActionRequestWithdrawal,
		ResourceType: "withdrawal",
		ResourceID:   uuid.New().String(),
		IPAddress:    "127.0.0.1",
	})
	svc.Wait()

	if assert.NotNil(t, got) {
		assert.Equal(t, domain.AuditActionRequestWithdrawal, got.Action)
		assert.NotEqual(t, uuid.Nil, got.ID)
		assert.False(t, got.CreatedAt.IsZero())
	}
}

func TestAuditService_Log_RepoErrorIsSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	svc.Log(context.Background(), &domain.AuditLog{Action: domain.AuditActionAdminLogin, Actor: "admin"})
	svc.Wait()
}

func TestAuditService_Log_NilRepo(t *testing.T) {
	svc := NewAuditService(nil, newTestLogger())

	svc.Log(context.Background(), &domain.AuditLog{Action: domain.AuditActionAdminLogin, Actor: "admin"})
	svc.Wait()
}
