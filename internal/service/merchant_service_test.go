package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"settlement-gateway/internal/core/domain"
	"settlement-gateway/internal/core/ports"
	"settlement-gateway/internal/core/ports/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestMerchantService_CreateMerchant_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockMerchantRepository(ctrl)
	mockEnc := mocks.NewMockEncryptionService(ctrl)
	svc := NewMerchantService(mockRepo, mockEnc, newTestLogger())

	var sealed string
	mockEnc.EXPECT().Encrypt(gomock.Any()).DoAndReturn(func(plain string) (string, error) {
		sealed = "enc(" + plain + ")"
		return sealed, nil
	})
	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, m *domain.Merchant) error {
			assert.Equal(t, "m_1", m.ID)
			assert.Equal(t, "Loja", m.Name)
			assert.Equal(t, sealed, m.SecretKeyEnc)
			assert.Equal(t, domain.MerchantStatusActive, m.Status)
			return nil
		},
	)

	resp, err := svc.CreateMerchant(context.Background(), ports.CreateMerchantRequest{ID: "m_1", Name: "Loja"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.AccessKey, "ak_"))
	assert.True(t, strings.HasPrefix(resp.SecretKey, "sk_"))
	assert.Len(t, resp.SecretKey, 3+64)
	assert.Equal(t, "enc("+resp.SecretKey+")", resp.Merchant.SecretKeyEnc)
}

func TestMerchantService_CreateMerchant_GeneratesID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockMerchantRepository(ctrl)
	mockEnc := mocks.NewMockEncryptionService(ctrl)
	svc := NewMerchantService(mockRepo, mockEnc, newTestLogger())

	mockEnc.EXPECT().Encrypt(gomock.Any()).Return("sealed", nil)
	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

	resp, err := svc.CreateMerchant(context.Background(), ports.CreateMerchantRequest{Name: "Loja"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Merchant.ID)
}

func TestMerchantService_CreateMerchant_Conflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockMerchantRepository(ctrl)
	mockEnc := mocks.NewMockEncryptionService(ctrl)
	svc := NewMerchantService(mockRepo, mockEnc, newTestLogger())

	mockEnc.EXPECT().Encrypt(gomock.Any()).Return("sealed", nil)
	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(fmt.Errorf("insert merchant: %w", ports.ErrConflict))

	_, err := svc.CreateMerchant(context.Background(), ports.CreateMerchantRequest{ID: "m_1", Name: "Loja"})
	assertAppError(t, err, "PAY_005")
}

func TestMerchantService_CreateMerchant_EncryptFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockMerchantRepository(ctrl)
	mockEnc := mocks.NewMockEncryptionService(ctrl)
	svc := NewMerchantService(mockRepo, mockEnc, newTestLogger())

	mockEnc.EXPECT().Encrypt(gomock.Any()).Return("", errors.New("bad key"))

	_, err := svc.CreateMerchant(context.Background(), ports.CreateMerchantRequest{ID: "m_1", Name: "Loja"})
	assertAppError(t, err, "SYS_003")
}

func TestMerchantService_GetMerchant(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockMerchantRepository(ctrl)
	svc := NewMerchantService(mockRepo, nil, newTestLogger())

	mockRepo.EXPECT().GetByID(gomock.Any(), "m_1").Return(&domain.Merchant{ID: "m_1"}, nil)
	mockRepo.EXPECT().GetByID(gomock.Any(), "m_2").Return(nil, nil)
	mockRepo.EXPECT().GetByID(gomock.Any(), "m_3").Return(nil, errors.New("db down"))

	m, err := svc.GetMerchant(context.Background(), "m_1")
	require.NoError(t, err)
	assert.Equal(t, "m_1", m.ID)

	_, err = svc.GetMerchant(context.Background(), "m_2")
	assertAppError(t, err, "PAY_004")

	_, err = svc.GetMerchant(context.Background(), "m_3")
	assertAppError(t, err, "SYS_001")
}
