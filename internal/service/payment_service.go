package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"settlement-gateway/internal/core/domain"
	"settlement-gateway/internal/core/ports"
	"settlement-gateway/internal/metrics"
	"settlement-gateway/internal/traces"
	"settlement-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PaymentServiceImpl implements ports.PaymentService.
type PaymentServiceImpl struct {
	paymentRepo  ports.PaymentRepository
	merchantRepo ports.MerchantRepository
	ledgerRepo   ports.LedgerRepository
	transactor   ports.DBTransactor
	guard        ports.MerchantGuard
	rates        ports.RateProvider
	webhooks     ports.WebhookService
	log          zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(
	paymentRepo ports.PaymentRepository,
	merchantRepo ports.MerchantRepository,
	ledgerRepo ports.LedgerRepository,
	transactor ports.DBTransactor,
	guard ports.MerchantGuard,
	rates ports.RateProvider,
	webhooks ports.WebhookService,
	log zerolog.Logger,
) *PaymentServiceImpl {
	return &PaymentServiceImpl{
		paymentRepo:  paymentRepo,
		merchantRepo: merchantRepo,
		ledgerRepo:   ledgerRepo,
		transactor:   transactor,
		guard:        guard,
		rates:        rates,
		webhooks:     webhooks,
		log:          log,
	}
}

// CreatePayment registers a PENDING charge. Re-sending the same charge under
// the same id returns the stored payment; a different charge under a used id
// is PAY_003.
func (s *PaymentServiceImpl) CreatePayment(ctx context.Context, req ports.CreatePaymentRequest) (payment *domain.Payment, err error) {
	done := metrics.ObserveOp("create_payment")
	ctx, span := traces.StartSpan(ctx, "payment.create", traces.MerchantID(req.MerchantID))
	defer func() {
		done(err)
		traces.End(span, err)
	}()

	if err := domain.ValidateAmount(req.GrossAmount); err != nil {
		return nil, apperror.Validation(fmt.Sprintf("gross_amount: %v", err))
	}
	if req.GrossCurrency == "" {
		return nil, apperror.Validation("gross_currency is required")
	}

	if _, err := activeMerchant(ctx, s.merchantRepo, req.MerchantID); err != nil {
		return nil, err
	}

	ledgerAmount, err := s.ledgerAmountFor(ctx, req)
	if err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	payment = &domain.Payment{
		ID:            id,
		MerchantID:    req.MerchantID,
		GrossAmount:   req.GrossAmount,
		GrossCurrency: strings.ToUpper(req.GrossCurrency),
		LedgerAmount:  ledgerAmount,
		Status:        domain.PaymentStatusPending,
		CreatedAt:     time.Now().UTC(),
	}

	created, err := s.paymentRepo.Create(ctx, payment)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create payment: %w", err))
	}
	if !created {
		existing, err := s.paymentRepo.GetByID(ctx, id)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("load payment: %w", err))
		}
		if existing == nil || !existing.SameCharge(payment) {
			return nil, apperror.ErrDuplicatePayment()
		}
		return existing, nil
	}

	s.log.Info().
		Str("payment_id", id).
		Str("merchant_id", req.MerchantID).
		Str("gross_amount", req.GrossAmount.String()).
		Str("ledger_amount", ledgerAmount.String()).
		Msg("payment created")

	return payment, nil
}

func (s *PaymentServiceImpl) ledgerAmountFor(ctx context.Context, req ports.CreatePaymentRequest) (decimal.Decimal, error) {
	if req.LedgerAmount != nil {
		if err := domain.ValidateAmount(*req.LedgerAmount); err != nil {
			return decimal.Zero, apperror.Validation(fmt.Sprintf("ledger_amount: %v", err))
		}
		return *req.LedgerAmount, nil
	}

	amount, err := s.rates.Convert(ctx, req.GrossAmount, req.GrossCurrency)
	if err != nil {
		return decimal.Zero, wrapErr("convert amount", err)
	}
	return amount, nil
}

// Confirm marks a payment PAID and credits its ledger amount exactly once.
// Confirming an already PAID payment returns the current balance and writes nothing.
func (s *PaymentServiceImpl) Confirm(ctx context.Context, paymentID string) (result *ports.ConfirmResult, err error) {
	done := metrics.ObserveOp("confirm_payment")
	ctx, span := traces.StartSpan(ctx, "payment.confirm", traces.PaymentID(paymentID))
	defer func() {
		done(err)
		traces.End(span, err)
	}()

	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}

	if payment.IsPaid() {
		balance, err := s.ledgerRepo.Balance(ctx, nil, payment.MerchantID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("compute balance: %w", err))
		}
		return &ports.ConfirmResult{Payment: payment, Balance: balance}, nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.guard.Lock(ctx, dbTx, payment.MerchantID); err != nil {
		return nil, wrapErr("lock merchant", err)
	}

	now := time.Now().UTC()
	marked, err := s.paymentRepo.MarkPaid(ctx, dbTx, payment.ID, now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark payment paid: %w", err))
	}

	credited := false
	if marked {
		entry := domain.NewLedgerEntry(payment.MerchantID, domain.EntryCredit, payment.LedgerAmount, payment.ID)
		if _, credited, err = s.ledgerRepo.Append(ctx, dbTx, entry); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("append credit: %w", err))
		}
	}

	balance, err := s.ledgerRepo.Balance(ctx, dbTx, payment.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("compute balance: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	if marked {
		payment.Status = domain.PaymentStatusPaid
		payment.PaidAt = &now
	} else {
		// A concurrent confirm won the CAS; report what it stored.
		if latest, err := s.paymentRepo.GetByID(ctx, payment.ID); err == nil && latest != nil {
			payment = latest
		}
	}

	if credited {
		metrics.LedgerEntriesTotal.WithLabelValues(string(domain.EntryCredit)).Inc()
		s.log.Info().
			Str("payment_id", payment.ID).
			Str("merchant_id", payment.MerchantID).
			Str("amount", payment.LedgerAmount.String()).
			Str("balance", balance.String()).
			Msg("payment confirmed")

		if err := s.webhooks.Enqueue(ctx, payment.MerchantID, domain.WebhookEventPaymentPaid, payment.ID, payment); err != nil {
			s.log.Warn().Err(err).Str("payment_id", payment.ID).Msg("failed to enqueue payment webhook")
		}
	}

	return &ports.ConfirmResult{Payment: payment, Balance: balance, Credited: credited}, nil
}

// GetPayment returns a payment owned by merchantID.
func (s *PaymentServiceImpl) GetPayment(ctx context.Context, merchantID, paymentID string) (*domain.Payment, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load payment: %w", err))
	}
	if payment == nil || payment.MerchantID != merchantID {
		return nil, apperror.ErrNotFound("payment")
	}
	return payment, nil
}
