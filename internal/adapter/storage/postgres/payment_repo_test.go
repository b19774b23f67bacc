package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"settlement-gateway/internal/core/domain"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayment() *domain.Payment {
	return &domain.Payment{
		ID:            "pay-001",
		MerchantID:    "merchant-1",
		GrossAmount:   decimal.RequireFromString("500"),
		GrossCurrency: "BRL",
		LedgerAmount:  decimal.RequireFromString("100"),
		Status:        domain.PaymentStatusPending,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

func paymentCols() []string {
	return []string{"id", "merchant_id", "gross_amount", "gross_currency", "ledger_amount", "status", "created_at", "paid_at"}
}

func TestPaymentRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment()

	mock.ExpectExec("INSERT INTO payments").
		WithArgs(p.ID, p.MerchantID, "500", "BRL", "100", domain.PaymentStatusPending, p.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	created, err := repo.Create(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_Create_Existing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment()

	mock.ExpectExec("INSERT INTO payments").
		WithArgs(p.ID, p.MerchantID, "500", "BRL", "100", domain.PaymentStatusPending, p.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	created, err := repo.Create(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment()
	paidAt := p.CreatedAt.Add(time.Minute)

	mock.ExpectQuery("SELECT .+ FROM payments WHERE id").
		WithArgs(p.ID).
		WillReturnRows(pgxmock.NewRows(paymentCols()).
			AddRow(p.ID, p.MerchantID, "500.000000", "BRL", "100.000000", domain.PaymentStatusPaid, p.CreatedAt, &paidAt))

	result, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.GrossAmount.Equal(p.GrossAmount))
	assert.True(t, result.LedgerAmount.Equal(p.LedgerAmount))
	assert.Equal(t, domain.PaymentStatusPaid, result.Status)
	require.NotNil(t, result.PaidAt)
	assert.Equal(t, paidAt, *result.PaidAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM payments WHERE id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(paymentCols()))

	result, err := repo.GetByID(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_MarkPaid(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"pending payment flips", 1, true},
		{"already paid", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			repo := NewPaymentRepo(mock)
			now := time.Now().UTC()

			mock.ExpectBegin()
			mock.ExpectExec("UPDATE payments SET status").
				WithArgs(domain.PaymentStatusPaid, now, "pay-001", domain.PaymentStatusPending).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			dbTx, err := mock.Begin(context.Background())
			require.NoError(t, err)

			ok, err := repo.MarkPaid(context.Background(), dbTx, "pay-001", now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPaymentRepo_MarkPaid_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payments SET status").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	_, err = repo.MarkPaid(context.Background(), dbTx, "pay-001", time.Now())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "mark payment paid")
}
