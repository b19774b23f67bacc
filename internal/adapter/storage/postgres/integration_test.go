//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"settlement-gateway/internal/adapter/storage/postgres"
	"settlement-gateway/internal/core/domain"
	"settlement-gateway/internal/core/ports"
	"settlement-gateway/internal/service"
	"settlement-gateway/migrations"
	"settlement-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// newTestPool starts a disposable postgres, applies the migrations and
// returns a pool connected to it.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("settlement"),
		tcpostgres.WithUsername("settlement"),
		tcpostgres.WithPassword("settlement"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.Up(db, "."))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

type noopWebhooks struct{}

func (noopWebhooks) Enqueue(context.Context, string, domain.WebhookEvent, string, any) error {
	return nil
}

type stack struct {
	merchants   *postgres.MerchantRepo
	payments    *postgres.PaymentRepo
	withdrawals *postgres.WithdrawalRepo
	ledger      *postgres.LedgerRepo
	paymentSvc  *service.PaymentServiceImpl
	withdrawSvc *service.WithdrawalServiceImpl
}

func newStack(t *testing.T, pool *pgxpool.Pool) *stack {
	t.Helper()
	log := zerolog.Nop()
	s := &stack{
		merchants:   postgres.NewMerchantRepo(pool),
		payments:    postgres.NewPaymentRepo(pool),
		withdrawals: postgres.NewWithdrawalRepo(pool),
		ledger:      postgres.NewLedgerRepo(pool),
	}
	transactor := postgres.NewTransactor(pool)
	guard := postgres.NewGuard(5 * time.Second)

	s.paymentSvc = service.NewPaymentService(s.payments, s.merchants, s.ledger, transactor, guard,
		service.NewStaticRateProvider("BRL", decimal.NewFromInt(1)), noopWebhooks{}, log)
	s.withdrawSvc = service.NewWithdrawalService(s.withdrawals, s.ledger, s.merchants,
		postgres.NewIdempotencyRepo(pool), nopCache{}, transactor, guard, noopWebhooks{}, log)
	return s
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) ([]byte, error) { return nil, nil }
func (nopCache) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (s *stack) merchant(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, s.merchants.Create(context.Background(), &domain.Merchant{
		ID:           id,
		Name:         id,
		AccessKey:    "ak_" + id,
		SecretKeyEnc: "sealed",
		Status:       domain.MerchantStatusActive,
	}))
}

func (s *stack) paid(t *testing.T, merchantID, paymentID, amount string) {
	t.Helper()
	ctx := context.Background()
	ledgerAmount := decimal.RequireFromString(amount)
	_, err := s.paymentSvc.CreatePayment(ctx, ports.CreatePaymentRequest{
		ID:            paymentID,
		MerchantID:    merchantID,
		GrossAmount:   ledgerAmount,
		GrossCurrency: "BRL",
		LedgerAmount:  &ledgerAmount,
	})
	require.NoError(t, err)
	_, err = s.paymentSvc.Confirm(ctx, paymentID)
	require.NoError(t, err)
}

func TestPostgres_LedgerAppendIsIdempotentPerReference(t *testing.T) {
	pool := newTestPool(t)
	s := newStack(t, pool)
	s.merchant(t, "m1")
	ctx := context.Background()

	entry := domain.NewLedgerEntry("m1", domain.EntryCredit, decimal.NewFromInt(100), "p1")
	first, created, err := s.ledger.Append(ctx, nil, entry)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.ledger.Append(ctx, nil, domain.NewLedgerEntry("m1", domain.EntryCredit, decimal.NewFromInt(100), "p1"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Seq, again.Seq)

	// Same reference on the other side of the ledger is a distinct fact.
	_, created, err = s.ledger.Append(ctx, nil, domain.NewLedgerEntry("m1", domain.EntryDebit, decimal.NewFromInt(30), "p1"))
	require.NoError(t, err)
	assert.True(t, created)

	balance, err := s.ledger.Balance(ctx, nil, "m1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(70)), balance.String())

	entries, err := s.ledger.EntriesFor(ctx, "m1", 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, domain.Replay(entries).Equal(balance))
	assert.Less(t, entries[0].Seq, entries[1].Seq)
}

func TestPostgres_MarkPaidOnlyOnce(t *testing.T) {
	pool := newTestPool(t)
	s := newStack(t, pool)
	s.merchant(t, "m1")
	ctx := context.Background()

	created, err := s.payments.Create(ctx, &domain.Payment{
		ID:            "p1",
		MerchantID:    "m1",
		GrossAmount:   decimal.NewFromInt(5),
		GrossCurrency: "BRL",
		LedgerAmount:  decimal.NewFromInt(1),
		Status:        domain.PaymentStatusPending,
	})
	require.NoError(t, err)
	require.True(t, created)

	ok, err := s.payments.MarkPaid(ctx, nil, "p1", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.payments.MarkPaid(ctx, nil, "p1", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgres_GuardTimesOut(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	transactor := postgres.NewTransactor(pool)

	holder, err := transactor.Begin(ctx)
	require.NoError(t, err)
	defer holder.Rollback(ctx) //nolint:errcheck
	require.NoError(t, postgres.NewGuard(0).Lock(ctx, holder, "m1"))

	waiter, err := transactor.Begin(ctx)
	require.NoError(t, err)
	defer waiter.Rollback(ctx) //nolint:errcheck

	err = postgres.NewGuard(100*time.Millisecond).Lock(ctx, waiter, "m1")
	assert.True(t, apperror.HasCode(err, "SYS_002"), "got %v", err)
}

func TestPostgres_GuardDifferentMerchantsDoNotBlock(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	transactor := postgres.NewTransactor(pool)
	guard := postgres.NewGuard(time.Second)

	holder, err := transactor.Begin(ctx)
	require.NoError(t, err)
	defer holder.Rollback(ctx) //nolint:errcheck
	require.NoError(t, guard.Lock(ctx, holder, "A"))

	other, err := transactor.Begin(ctx)
	require.NoError(t, err)
	defer other.Rollback(ctx) //nolint:errcheck
	start := time.Now()
	require.NoError(t, guard.Lock(ctx, other, "B"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	// "A" is still held by the open transaction.
	waiter, err := transactor.Begin(ctx)
	require.NoError(t, err)
	defer waiter.Rollback(ctx) //nolint:errcheck
	err = postgres.NewGuard(100*time.Millisecond).Lock(ctx, waiter, "A")
	assert.True(t, apperror.HasCode(err, "SYS_002"), "got %v", err)
}

func TestPostgres_ConcurrentConfirmCreditsOnce(t *testing.T) {
	pool := newTestPool(t)
	s := newStack(t, pool)
	s.merchant(t, "m1")
	ctx := context.Background()

	amount := decimal.NewFromInt(100)
	_, err := s.paymentSvc.CreatePayment(ctx, ports.CreatePaymentRequest{
		ID: "p1", MerchantID: "m1", GrossAmount: amount, GrossCurrency: "BRL", LedgerAmount: &amount,
	})
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		credited int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.paymentSvc.Confirm(ctx, "p1")
			if !assert.NoError(t, err) {
				return
			}
			if res.Credited {
				mu.Lock()
				credited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, credited)
	balance, err := s.ledger.Balance(ctx, nil, "m1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(amount), balance.String())
}

func TestPostgres_ConcurrentWithdrawalsCannotOverdraw(t *testing.T) {
	pool := newTestPool(t)
	s := newStack(t, pool)
	s.merchant(t, "m1")
	s.paid(t, "m1", "p1", "100")
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []uuid.UUID
		refused  int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := s.withdrawSvc.Request(ctx, ports.WithdrawalRequest{MerchantID: "m1", Amount: decimal.NewFromInt(60)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted = append(accepted, w.ID)
			case apperror.HasCode(err, "PAY_001"):
				refused++
			default:
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	require.Len(t, accepted, 1)
	assert.Equal(t, 1, refused)

	// Concurrent approvals of the same withdrawal debit once.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := s.withdrawSvc.Approve(ctx, accepted[0])
			if assert.NoError(t, err) {
				assert.Equal(t, domain.WithdrawalStatusPaid, w.Status)
			}
		}()
	}
	wg.Wait()

	balance, err := s.ledger.Balance(ctx, nil, "m1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(40)), balance.String())

	reserved, err := s.withdrawals.SumRequested(ctx, nil, "m1")
	require.NoError(t, err)
	assert.True(t, reserved.IsZero())

	entries, err := s.ledger.EntriesFor(ctx, "m1", 0, 100)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.True(t, domain.Replay(entries).Equal(balance))
}

func TestPostgres_ListWithdrawalsFilters(t *testing.T) {
	pool := newTestPool(t)
	s := newStack(t, pool)
	s.merchant(t, "m1")
	s.merchant(t, "m2")
	s.paid(t, "m1", "p1", "100")
	s.paid(t, "m2", "p2", "100")
	ctx := context.Background()

	for _, m := range []string{"m1", "m1", "m2"} {
		_, err := s.withdrawSvc.Request(ctx, ports.WithdrawalRequest{MerchantID: m, Amount: decimal.NewFromInt(10)})
		require.NoError(t, err)
	}

	m1 := "m1"
	items, total, err := s.withdrawals.List(ctx, ports.WithdrawalListParams{MerchantID: &m1, Page: 1, PageSize: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, items, 1)

	status := domain.WithdrawalStatusRequested
	_, total, err = s.withdrawals.List(ctx, ports.WithdrawalListParams{Status: &status, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
}
