package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"settlement-gateway/internal/core/domain"
	"settlement-gateway/internal/core/ports"
	"settlement-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MerchantServiceImpl implements ports.MerchantService.
type MerchantServiceImpl struct {
	merchantRepo ports.MerchantRepository
	encSvc       ports.EncryptionService
	log          zerolog.Logger
}

// NewMerchantService creates a new merchant management service.
func NewMerchantService(
	merchantRepo ports.MerchantRepository,
	encSvc ports.EncryptionService,
	log zerolog.Logger,
) *MerchantServiceImpl {
	return &MerchantServiceImpl{
		merchantRepo: merchantRepo,
		encSvc:       encSvc,
		log:          log,
	}
}

// CreateMerchant registers a merchant and issues its API key pair.
// The secret key is returned in plaintext only here; it is stored sealed.
func (s *MerchantServiceImpl) CreateMerchant(ctx context.Context, req ports.CreateMerchantRequest) (*ports.CreateMerchantResponse, error) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	accessKey, err := generateKey("ak_", 24)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate access key: %w", err))
	}
	secretKey, err := generateKey("sk_", 32)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate secret key: %w", err))
	}

	secretKeyEnc, err := s.encSvc.Encrypt(secretKey)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(fmt.Errorf("encrypt secret key: %w", err))
	}

	now := time.Now().UTC()
	merchant := &domain.Merchant{
		ID:           id,
		Name:         req.Name,
		AccessKey:    accessKey,
		SecretKeyEnc: secretKeyEnc,
		WebhookURL:   req.WebhookURL,
		Status:       domain.MerchantStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.merchantRepo.Create(ctx, merchant); err != nil {
		if errors.Is(err, ports.ErrConflict) {
			return nil, apperror.ErrMerchantExists()
		}
		return nil, apperror.InternalError(fmt.Errorf("create merchant: %w", err))
	}

	s.log.Info().Str("merchant_id", id).Msg("merchant created")

	return &ports.CreateMerchantResponse{
		Merchant:  merchant,
		AccessKey: accessKey,
		SecretKey: secretKey,
	}, nil
}

// GetMerchant returns the merchant or PAY_004.
func (s *MerchantServiceImpl) GetMerchant(ctx context.Context, id string) (*domain.Merchant, error) {
	merchant, err := s.merchantRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("merchant")
	}
	return merchant, nil
}

func generateKey(prefix string, length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(b), nil
}
