package service

import (
	"context"
	"errors"
	"fmt"

	"settlement-gateway/internal/core/domain"
	"settlement-gateway/internal/core/ports"
	"settlement-gateway/pkg/apperror"

	"github.com/rs/zerolog"
)

const (
	defaultLedgerPageSize = 100
	maxLedgerPageSize     = 1000
)

// LedgerServiceImpl implements ports.LedgerService.
type LedgerServiceImpl struct {
	ledgerRepo     ports.LedgerRepository
	withdrawalRepo ports.WithdrawalRepository
	merchantRepo   ports.MerchantRepository
	asset          string
	log            zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl. asset names the
// settlement asset reported with balances.
func NewLedgerService(
	ledgerRepo ports.LedgerRepository,
	withdrawalRepo ports.WithdrawalRepository,
	merchantRepo ports.MerchantRepository,
	asset string,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		ledgerRepo:     ledgerRepo,
		withdrawalRepo: withdrawalRepo,
		merchantRepo:   merchantRepo,
		asset:          asset,
		log:            log,
	}
}

// GetBalance returns the ledger balance, the amount reserved by REQUESTED
// withdrawals and what is left to withdraw.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, merchantID string) (*ports.BalanceSummary, error) {
	if err := s.requireMerchant(ctx, merchantID); err != nil {
		return nil, err
	}

	balance, err := s.ledgerRepo.Balance(ctx, nil, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("compute balance: %w", err))
	}
	reserved, err := s.withdrawalRepo.SumRequested(ctx, nil, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("sum requested withdrawals: %w", err))
	}

	return &ports.BalanceSummary{
		MerchantID: merchantID,
		Asset:      s.asset,
		Balance:    balance,
		Reserved:   reserved,
		Available:  balance.Sub(reserved),
	}, nil
}

// GetLedger pages through a merchant's entries in seq order. Pass the last
// seq of the previous page as afterSeq to continue.
func (s *LedgerServiceImpl) GetLedger(ctx context.Context, merchantID string, afterSeq int64, limit int) ([]domain.LedgerEntry, error) {
	if err := s.requireMerchant(ctx, merchantID); err != nil {
		return nil, err
	}

	if afterSeq < 0 {
		afterSeq = 0
	}
	if limit <= 0 {
		limit = defaultLedgerPageSize
	}
	if limit > maxLedgerPageSize {
		limit = maxLedgerPageSize
	}

	entries, err := s.ledgerRepo.EntriesFor(ctx, merchantID, afterSeq, limit)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list ledger entries: %w", err))
	}
	return entries, nil
}

func (s *LedgerServiceImpl) requireMerchant(ctx context.Context, merchantID string) error {
	merchant, err := s.merchantRepo.GetByID(ctx, merchantID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("load merchant: %w", err))
	}
	if merchant == nil {
		return apperror.ErrNotFound("merchant")
	}
	return nil
}

// activeMerchant loads a merchant that may move money.
func activeMerchant(ctx context.Context, repo ports.MerchantRepository, merchantID string) (*domain.Merchant, error) {
	merchant, err := repo.GetByID(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load merchant: %w", err))
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("merchant")
	}
	if !merchant.IsActive() {
		return nil, apperror.ErrMerchantSuspended()
	}
	return merchant, nil
}

// wrapErr passes AppErrors through and turns anything else into SYS_001.
func wrapErr(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperror.InternalError(fmt.Errorf("%s: %w", op, err))
}
