package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"settlement-gateway/internal/core/domain"
	"settlement-gateway/internal/core/ports"
	"settlement-gateway/internal/core/ports/mocks"
	"settlement-gateway/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type paymentTestDeps struct {
	svc          *PaymentServiceImpl
	paymentRepo  *mocks.MockPaymentRepository
	merchantRepo *mocks.MockMerchantRepository
	ledgerRepo   *mocks.MockLedgerRepository
	transactor   *mocks.MockDBTransactor
	guard        *mocks.MockMerchantGuard
	rates        *mocks.MockRateProvider
	webhooks     *mocks.MockWebhookService
}

func setupPaymentService(t *testing.T) *paymentTestDeps {
	ctrl := gomock.NewController(t)
	d := &paymentTestDeps{
		paymentRepo:  mocks.NewMockPaymentRepository(ctrl),
		merchantRepo: mocks.NewMockMerchantRepository(ctrl),
		ledgerRepo:   mocks.NewMockLedgerRepository(ctrl),
		transactor:   mocks.NewMockDBTransactor(ctrl),
		guard:        mocks.NewMockMerchantGuard(ctrl),
		rates:        mocks.NewMockRateProvider(ctrl),
		webhooks:     mocks.NewMockWebhookService(ctrl),
	}
	d.svc = NewPaymentService(
		d.paymentRepo, d.merchantRepo, d.ledgerRepo, d.transactor,
		d.guard, d.rates, d.webhooks, zerolog.Nop(),
	)
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct {
	pgx.Tx
	committed bool
}

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error {
	m.committed = true
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func activeTestMerchant(id string) *domain.Merchant {
	return &domain.Merchant{ID: id, Name: "Loja", AccessKey: "ak_" + id, Status: domain.MerchantStatusActive}
}

func pendingPayment() *domain.Payment {
	return &domain.Payment{
		ID:            "pay_1",
		MerchantID:    "m_1",
		GrossAmount:   dec("500"),
		GrossCurrency: "BRL",
		LedgerAmount:  dec("100"),
		Status:        domain.PaymentStatusPending,
		CreatedAt:     time.Now().UTC(),
	}
}

// ==================== CreatePayment Tests ====================

func TestPaymentService_CreatePayment_ConvertsWithRate(t *testing.T) {
	d := setupPaymentService(t)
	ctx := context.Background()

	d.merchantRepo.EXPECT().GetByID(gomock.Any(), "m_1").Return(activeTestMerchant("m_1"), nil)
	d.rates.EXPECT().Convert(gomock.Any(), dec("500"), "brl").Return(dec("100"), nil)
	d.paymentRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p *domain.Payment) (bool, error) {
			assert.Equal(t, "pay_1", p.ID)
			assert.Equal(t, domain.PaymentStatusPending, p.Status)
			assert.True(t, dec("100").Equal(p.LedgerAmount))
			return true, nil
		},
	)

	p, err := d.svc.CreatePayment(ctx, ports.CreatePaymentRequest{
		ID: "pay_1", MerchantID: "m_1", GrossAmount: dec("500"), GrossCurrency: "brl",
	})
	require.NoError(t, err)
	assert.Equal(t, "BRL", p.GrossCurrency)
}

func TestPaymentService_CreatePayment_ExplicitLedgerAmount(t *testing.T) {
	d := setupPaymentService(t)
	ledger := dec("42.5")

	d.merchantRepo.EXPECT().GetByID(gomock.Any(), "m_1").Return(activeTestMerchant("m_1"), nil)
	d.paymentRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(true, nil)

	p, err := d.svc.CreatePayment(context.Background(), ports.CreatePaymentRequest{
		MerchantID: "m_1", GrossAmount: dec("200"), GrossCurrency: "BRL", LedgerAmount: &ledger,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.True(t, ledger.Equal(p.LedgerAmount))
}

func TestPaymentService_CreatePayment_Validation(t *testing.T) {
	d := setupPaymentService(t)

	_, err := d.svc.CreatePayment(context.Background(), ports.CreatePaymentRequest{
		MerchantID: "m_1", GrossAmount: dec("0"), GrossCurrency: "BRL",
	})
	assertAppError(t, err, "PAY_002")

	_, err = d.svc.CreatePayment(context.Background(), ports.CreatePaymentRequest{
		MerchantID: "m_1", GrossAmount: dec("10"),
	})
	assertAppError(t, err, "PAY_002")

	_, err = d.svc.CreatePayment(context.Background(), ports.CreatePaymentRequest{
		MerchantID: "m_1", GrossAmount: dec("1e30"), GrossCurrency: "BRL",
	})
	assertAppError(t, err, "PAY_002")
	assert.False(t, apperror.Retryable(err))

	huge := dec("100000000000000")
	d.merchantRepo.EXPECT().GetByID(gomock.Any(), "m_1").Return(activeTestMerchant("m_1"), nil)
	_, err = d.svc.CreatePayment(context.Background(), ports.CreatePaymentRequest{
		MerchantID: "m_1", GrossAmount: dec("10"), GrossCurrency: "BRL", LedgerAmount: &huge,
	})
	assertAppError(t, err, "PAY_002")
}

func TestPaymentService_CreatePayment_SuspendedMerchant(t *testing.T) {
	d := setupPaymentService(t)

	d.merchantRepo.EXPECT().GetByID(gomock.Any(), "m_1").Return(&domain.Merchant{ID: "m_1", Status: domain.MerchantStatusSuspended}, nil)

	_, err := d.svc.CreatePayment(context.Background(), ports.CreatePaymentRequest{
		MerchantID: "m_1", GrossAmount: dec("10"), GrossCurrency: "BRL",
	})
	assertAppError(t, err, "AUTH_004")
}

func TestPaymentService_CreatePayment_IdempotentResend(t *testing.T) {
	d := setupPaymentService(t)
	ledger := dec("100")
	existing := pendingPayment()

	d.merchantRepo.EXPECT().GetByID(gomock.Any(), "m_1").Return(activeTestMerchant("m_1"), nil)
	d.paymentRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(false, nil)
	d.paymentRepo.EXPECT().GetByID(gomock.Any(), "pay_1").Return(existing, nil)

	p, err := d.svc.CreatePayment(context.Background(), ports.CreatePaymentRequest{
		ID: "pay_1", MerchantID: "m_1", GrossAmount: dec("500"), GrossCurrency: "BRL", LedgerAmount: &ledger,
	})
	require.NoError(t, err)
	assert.Same(t, existing, p)
}

func TestPaymentService_CreatePayment_ConflictingResend(t *testing.T) {
	d := setupPaymentService(t)
	ledger := dec("999")

	d.merchantRepo.EXPECT().GetByID(gomock.Any(), "m_1").Return(activeTestMerchant("m_1"), nil)
	d.paymentRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(false, nil)
	d.paymentRepo.EXPECT().GetByID(gomock.Any(), "pay_1").Return(pendingPayment(), nil)

	_, err := d.svc.CreatePayment(context.Background(), ports.CreatePaymentRequest{
		ID: "pay_1", MerchantID: "m_1", GrossAmount: dec("500"), GrossCurrency: "BRL", LedgerAmount: &ledger,
	})
	assertAppError(t, err, "PAY_003")
}

// ==================== Confirm Tests ====================

func TestPaymentService_Confirm_CreditsOnce(t *testing.T) {
	d := setupPaymentService(t)
	tx := &mockTx{}

	d.paymentRepo.EXPECT().GetByID(gomock.Any(), "pay_1").Return(pendingPayment(), nil)
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.guard.EXPECT().Lock(gomock.Any(), tx, "m_1").Return(nil)
	d.paymentRepo.EXPECT().MarkPaid(gomock.Any(), tx, "pay_1", gomock.Any()).Return(true, nil)
	d.ledgerRepo.EXPECT().Append(gomock.Any(), tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, e *domain.LedgerEntry) (*domain.LedgerEntry, bool, error) {
			assert.Equal(t, domain.EntryCredit, e.Kind)
			assert.Equal(t, "pay_1", e.Reference)
			assert.True(t, dec("100").Equal(e.Amount))
			return e, true, nil
		},
	)
	d.ledgerRepo.EXPECT().Balance(gomock.Any(), tx, "m_1").Return(dec("100"), nil)
	d.webhooks.EXPECT().Enqueue(gomock.Any(), "m_1", domain.WebhookEventPaymentPaid, "pay_1", gomock.Any()).Return(nil)

	res, err := d.svc.Confirm(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.True(t, tx.committed)
	assert.True(t, res.Credited)
	assert.Equal(t, domain.PaymentStatusPaid, res.Payment.Status)
	assert.NotNil(t, res.Payment.PaidAt)
	assert.True(t, dec("100").Equal(res.Balance))
}

func TestPaymentService_Confirm_AlreadyPaid(t *testing.T) {
	d := setupPaymentService(t)
	paid := pendingPayment()
	paid.Status = domain.PaymentStatusPaid

	d.paymentRepo.EXPECT().GetByID(gomock.Any(), "pay_1").Return(paid, nil)
	d.ledgerRepo.EXPECT().Balance(gomock.Any(), gomock.Nil(), "m_1").Return(dec("100"), nil)

	res, err := d.svc.Confirm(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.False(t, res.Credited)
	assert.True(t, dec("100").Equal(res.Balance))
}

func TestPaymentService_Confirm_LostRace(t *testing.T) {
	d := setupPaymentService(t)
	tx := &mockTx{}
	paidAt := time.Now().UTC()
	stored := pendingPayment()
	stored.Status = domain.PaymentStatusPaid
	stored.PaidAt = &paidAt

	gomock.InOrder(
		d.paymentRepo.EXPECT().GetByID(gomock.Any(), "pay_1").Return(pendingPayment(), nil),
		d.paymentRepo.EXPECT().GetByID(gomock.Any(), "pay_1").Return(stored, nil),
	)
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.guard.EXPECT().Lock(gomock.Any(), tx, "m_1").Return(nil)
	d.paymentRepo.EXPECT().MarkPaid(gomock.Any(), tx, "pay_1", gomock.Any()).Return(false, nil)
	d.ledgerRepo.EXPECT().Balance(gomock.Any(), tx, "m_1").Return(dec("100"), nil)

	res, err := d.svc.Confirm(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.False(t, res.Credited)
	assert.Equal(t, &paidAt, res.Payment.PaidAt)
}

func TestPaymentService_Confirm_NotFound(t *testing.T) {
	d := setupPaymentService(t)

	d.paymentRepo.EXPECT().GetByID(gomock.Any(), "nope").Return(nil, nil)

	_, err := d.svc.Confirm(context.Background(), "nope")
	assertAppError(t, err, "PAY_004")
}

func TestPaymentService_Confirm_LockTimeout(t *testing.T) {
	d := setupPaymentService(t)
	tx := &mockTx{}

	d.paymentRepo.EXPECT().GetByID(gomock.Any(), "pay_1").Return(pendingPayment(), nil)
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.guard.EXPECT().Lock(gomock.Any(), tx, "m_1").Return(apperror.ErrLockTimeout(errors.New("55P03")))

	_, err := d.svc.Confirm(context.Background(), "pay_1")
	assertAppError(t, err, "SYS_002")
	assert.True(t, apperror.Retryable(err))
	assert.False(t, tx.committed)
}

func TestPaymentService_Confirm_AppendFailureRollsBack(t *testing.T) {
	d := setupPaymentService(t)
	tx := &mockTx{}

	d.paymentRepo.EXPECT().GetByID(gomock.Any(), "pay_1").Return(pendingPayment(), nil)
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.guard.EXPECT().Lock(gomock.Any(), tx, "m_1").Return(nil)
	d.paymentRepo.EXPECT().MarkPaid(gomock.Any(), tx, "pay_1", gomock.Any()).Return(true, nil)
	d.ledgerRepo.EXPECT().Append(gomock.Any(), tx, gomock.Any()).Return(nil, false, errors.New("disk full"))

	_, err := d.svc.Confirm(context.Background(), "pay_1")
	assertAppError(t, err, "SYS_001")
	assert.False(t, tx.committed)
}

func TestPaymentService_Confirm_WebhookFailureIsBestEffort(t *testing.T) {
	d := setupPaymentService(t)
	tx := &mockTx{}

	d.paymentRepo.EXPECT().GetByID(gomock.Any(), "pay_1").Return(pendingPayment(), nil)
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.guard.EXPECT().Lock(gomock.Any(), tx, "m_1").Return(nil)
	d.paymentRepo.EXPECT().MarkPaid(gomock.Any(), tx, "pay_1", gomock.Any()).Return(true, nil)
	d.ledgerRepo.EXPECT().Append(gomock.Any(), tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, e *domain.LedgerEntry) (*domain.LedgerEntry, bool, error) {
			return e, true, nil
		},
	)
	d.ledgerRepo.EXPECT().Balance(gomock.Any(), tx, "m_1").Return(dec("100"), nil)
	d.webhooks.EXPECT().Enqueue(gomock.Any(), "m_1", domain.WebhookEventPaymentPaid, "pay_1", gomock.Any()).Return(errors.New("redis down"))

	res, err := d.svc.Confirm(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.True(t, res.Credited)
}

// ==================== GetPayment Tests ====================

func TestPaymentService_GetPayment_ScopedToMerchant(t *testing.T) {
	d := setupPaymentService(t)

	d.paymentRepo.EXPECT().GetByID(gomock.Any(), "pay_1").Return(pendingPayment(), nil).Times(2)

	p, err := d.svc.GetPayment(context.Background(), "m_1", "pay_1")
	require.NoError(t, err)
	assert.Equal(t, "pay_1", p.ID)

	_, err = d.svc.GetPayment(context.Background(), "m_other", "pay_1")
	assertAppError(t, err, "PAY_004")
}

// ==================== Helper ====================

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, expectedCode, appErr.Code)
}
