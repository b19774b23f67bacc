package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"settlement-gateway/internal/core/domain"
	"settlement-gateway/internal/core/ports"
	"settlement-gateway/internal/metrics"
	"settlement-gateway/internal/traces"
	"settlement-gateway/pkg/apperror"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	idempotencyTTL = 24 * time.Hour

	defaultPageSize = 20
	maxPageSize     = 100
)

// WithdrawalServiceImpl implements ports.WithdrawalService.
type WithdrawalServiceImpl struct {
	withdrawalRepo ports.WithdrawalRepository
	ledgerRepo     ports.LedgerRepository
	merchantRepo   ports.MerchantRepository
	idempRepo      ports.IdempotencyRepository
	idempCache     ports.IdempotencyCache
	transactor     ports.DBTransactor
	guard          ports.MerchantGuard
	webhooks       ports.WebhookService
	log            zerolog.Logger
}

// NewWithdrawalService creates a new WithdrawalServiceImpl.
func NewWithdrawalService(
	withdrawalRepo ports.WithdrawalRepository,
	ledgerRepo ports.LedgerRepository,
	merchantRepo ports.MerchantRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	guard ports.MerchantGuard,
	webhooks ports.WebhookService,
	log zerolog.Logger,
) *WithdrawalServiceImpl {
	return &WithdrawalServiceImpl{
		withdrawalRepo: withdrawalRepo,
		ledgerRepo:     ledgerRepo,
		merchantRepo:   merchantRepo,
		idempRepo:      idempRepo,
		idempCache:     idempCache,
		transactor:     transactor,
		guard:          guard,
		webhooks:       webhooks,
		log:            log,
	}
}

// Request reserves part of the merchant's available balance as a REQUESTED
// withdrawal. available = balance - sum(REQUESTED) is evaluated under the
// merchant guard, so concurrent requests can never reserve more than the balance.
func (s *WithdrawalServiceImpl) Request(ctx context.Context, req ports.WithdrawalRequest) (w *domain.Withdrawal, err error) {
	done := metrics.ObserveOp("request_withdrawal")
	ctx, span := traces.StartSpan(ctx, "withdrawal.request",
		traces.MerchantID(req.MerchantID), traces.Amount(req.Amount.String()))
	defer func() {
		done(err)
		traces.End(span, err)
	}()

	if err := domain.ValidateAmount(req.Amount); err != nil {
		return nil, apperror.Validation(fmt.Sprintf("amount: %v", err))
	}
	destination := req.DestinationAddress
	if destination != "" {
		if !common.IsHexAddress(destination) {
			return nil, apperror.ErrInvalidAddress()
		}
		destination = common.HexToAddress(destination).Hex()
	}

	if _, err := activeMerchant(ctx, s.merchantRepo, req.MerchantID); err != nil {
		return nil, err
	}

	var idempKey string
	if req.IdempotencyKey != "" {
		idempKey = domain.BuildWithdrawalIdempotencyKey(req.MerchantID, req.IdempotencyKey)

		// Layer 1: Redis idempotency check
		cached, err := s.idempCache.Get(ctx, idempKey)
		if err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, falling through to DB")
		}
		if cached != nil {
			return unmarshalWithdrawal(cached)
		}

		// Layer 2: DB idempotency check
		if replay, err := s.replayFromDB(ctx, idempKey); err != nil || replay != nil {
			return replay, err
		}
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.guard.Lock(ctx, dbTx, req.MerchantID); err != nil {
		return nil, wrapErr("lock merchant", err)
	}

	// A request with the same key may have committed while we waited.
	if idempKey != "" {
		if replay, err := s.replayFromDB(ctx, idempKey); err != nil || replay != nil {
			return replay, err
		}
	}

	balance, err := s.ledgerRepo.Balance(ctx, dbTx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("compute balance: %w", err))
	}
	reserved, err := s.withdrawalRepo.SumRequested(ctx, dbTx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("sum requested withdrawals: %w", err))
	}
	if req.Amount.GreaterThan(balance.Sub(reserved)) {
		return nil, apperror.ErrInsufficientBalance()
	}

	now := time.Now().UTC()
	w = &domain.Withdrawal{
		ID:                 uuid.New(),
		MerchantID:         req.MerchantID,
		Amount:             req.Amount,
		DestinationAddress: destination,
		Status:             domain.WithdrawalStatusRequested,
		CreatedAt:          now,
	}
	if err := s.withdrawalRepo.Create(ctx, dbTx, w); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create withdrawal: %w", err))
	}

	var respJSON []byte
	if idempKey != "" {
		respJSON, err = json.Marshal(w)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
		}
		record := &domain.IdempotencyRecord{
			Key:          idempKey,
			ResourceID:   w.ID.String(),
			ResponseJSON: respJSON,
			CreatedAt:    now,
		}
		if err := s.idempRepo.Create(ctx, dbTx, record); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("save idempotency record: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	// Post-process: cache in Redis (best-effort)
	if idempKey != "" {
		if err := s.idempCache.Set(ctx, idempKey, respJSON, idempotencyTTL); err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
		}
	}

	s.log.Info().
		Str("withdrawal_id", w.ID.String()).
		Str("merchant_id", req.MerchantID).
		Str("amount", req.Amount.String()).
		Msg("withdrawal requested")

	return w, nil
}

// Approve settles a REQUESTED withdrawal. If the balance no longer covers it,
// the withdrawal is REJECTED with reason insufficient_balance instead; that
// outcome is returned without an error. Approving a PAID withdrawal is a no-op.
func (s *WithdrawalServiceImpl) Approve(ctx context.Context, id uuid.UUID) (w *domain.Withdrawal, err error) {
	done := metrics.ObserveOp("approve_withdrawal")
	ctx, span := traces.StartSpan(ctx, "withdrawal.approve", traces.WithdrawalID(id.String()))
	defer func() {
		done(err)
		traces.End(span, err)
	}()

	w, dbTx, err := s.lockWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	switch w.Status {
	case domain.WithdrawalStatusPaid:
		return w, nil
	case domain.WithdrawalStatusRejected:
		return nil, apperror.ErrAlreadyTerminal(string(w.Status))
	}

	balance, err := s.ledgerRepo.Balance(ctx, dbTx, w.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("compute balance: %w", err))
	}

	now := time.Now().UTC()
	event := domain.WebhookEventWithdrawalPaid
	if balance.LessThan(w.Amount) {
		reason := domain.RejectReasonInsufficientBalance
		if err := s.withdrawalRepo.UpdateStatus(ctx, dbTx, w.ID, domain.WithdrawalStatusRejected, &reason, now); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("reject withdrawal: %w", err))
		}
		w.Status = domain.WithdrawalStatusRejected
		w.RejectionReason = &reason
		event = domain.WebhookEventWithdrawalRejected
	} else {
		if err := s.withdrawalRepo.UpdateStatus(ctx, dbTx, w.ID, domain.WithdrawalStatusPaid, nil, now); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("settle withdrawal: %w", err))
		}
		entry := domain.NewLedgerEntry(w.MerchantID, domain.EntryDebit, w.Amount, w.ID.String())
		if _, _, err := s.ledgerRepo.Append(ctx, dbTx, entry); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("append debit: %w", err))
		}
		w.Status = domain.WithdrawalStatusPaid
	}
	w.DecidedAt = &now

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	if w.Status == domain.WithdrawalStatusPaid {
		metrics.LedgerEntriesTotal.WithLabelValues(string(domain.EntryDebit)).Inc()
	}
	s.log.Info().
		Str("withdrawal_id", w.ID.String()).
		Str("merchant_id", w.MerchantID).
		Str("status", string(w.Status)).
		Str("balance", balance.String()).
		Msg("withdrawal decided")

	s.notify(ctx, w, event)
	return w, nil
}

// Reject moves a REQUESTED withdrawal to REJECTED, releasing its reservation.
// Rejecting twice is a no-op; rejecting a PAID withdrawal is PAY_007.
func (s *WithdrawalServiceImpl) Reject(ctx context.Context, id uuid.UUID, reason string) (w *domain.Withdrawal, err error) {
	done := metrics.ObserveOp("reject_withdrawal")
	ctx, span := traces.StartSpan(ctx, "withdrawal.reject", traces.WithdrawalID(id.String()))
	defer func() {
		done(err)
		traces.End(span, err)
	}()

	if reason == "" {
		reason = domain.RejectReasonManual
	}

	w, dbTx, err := s.lockWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	switch w.Status {
	case domain.WithdrawalStatusRejected:
		return w, nil
	case domain.WithdrawalStatusPaid:
		return nil, apperror.ErrAlreadyTerminal(string(w.Status))
	}

	now := time.Now().UTC()
	if err := s.withdrawalRepo.UpdateStatus(ctx, dbTx, w.ID, domain.WithdrawalStatusRejected, &reason, now); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("reject withdrawal: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	w.Status = domain.WithdrawalStatusRejected
	w.RejectionReason = &reason
	w.DecidedAt = &now

	s.log.Info().Str("withdrawal_id", w.ID.String()).Str("reason", reason).Msg("withdrawal rejected")

	s.notify(ctx, w, domain.WebhookEventWithdrawalRejected)
	return w, nil
}

// Get returns a withdrawal. A non-empty merchantID hides other merchants' withdrawals.
func (s *WithdrawalServiceImpl) Get(ctx context.Context, merchantID string, id uuid.UUID) (*domain.Withdrawal, error) {
	w, err := s.withdrawalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load withdrawal: %w", err))
	}
	if w == nil || (merchantID != "" && w.MerchantID != merchantID) {
		return nil, apperror.ErrNotFound("withdrawal")
	}
	return w, nil
}

// List returns withdrawals newest first with the total match count.
func (s *WithdrawalServiceImpl) List(ctx context.Context, params ports.WithdrawalListParams) ([]domain.Withdrawal, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}

	items, total, err := s.withdrawalRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list withdrawals: %w", err))
	}
	return items, total, nil
}

// lockWithdrawal opens a transaction, takes the owner's guard and re-reads
// the withdrawal FOR UPDATE. The caller must roll back the returned tx.
func (s *WithdrawalServiceImpl) lockWithdrawal(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, pgx.Tx, error) {
	w, err := s.withdrawalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("load withdrawal: %w", err))
	}
	if w == nil {
		return nil, nil, apperror.ErrNotFound("withdrawal")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}

	if err := s.guard.Lock(ctx, dbTx, w.MerchantID); err != nil {
		dbTx.Rollback(ctx) //nolint:errcheck
		return nil, nil, wrapErr("lock merchant", err)
	}

	locked, err := s.withdrawalRepo.GetByIDForUpdate(ctx, dbTx, id)
	if err != nil {
		dbTx.Rollback(ctx) //nolint:errcheck
		return nil, nil, apperror.InternalError(fmt.Errorf("lock withdrawal: %w", err))
	}
	if locked == nil {
		dbTx.Rollback(ctx) //nolint:errcheck
		return nil, nil, apperror.ErrNotFound("withdrawal")
	}
	return locked, dbTx, nil
}

func (s *WithdrawalServiceImpl) replayFromDB(ctx context.Context, key string) (*domain.Withdrawal, error) {
	record, err := s.idempRepo.Get(ctx, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if record == nil {
		return nil, nil
	}
	return unmarshalWithdrawal(record.ResponseJSON)
}

func (s *WithdrawalServiceImpl) notify(ctx context.Context, w *domain.Withdrawal, event domain.WebhookEvent) {
	if err := s.webhooks.Enqueue(ctx, w.MerchantID, event, w.ID.String(), w); err != nil {
		s.log.Warn().Err(err).Str("withdrawal_id", w.ID.String()).Msg("failed to enqueue withdrawal webhook")
	}
}

func unmarshalWithdrawal(data []byte) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached withdrawal: %w", err))
	}
	return &w, nil
}
