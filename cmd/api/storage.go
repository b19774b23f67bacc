package main

import (
	"context"
	"fmt"

	"settlement-gateway/config"
	"settlement-gateway/internal/adapter/storage/memory"
	pgStorage "settlement-gateway/internal/adapter/storage/postgres"
	"settlement-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

// storage is the set of persistence ports the services run on.
type storage struct {
	merchants   ports.MerchantRepository
	payments    ports.PaymentRepository
	withdrawals ports.WithdrawalRepository
	ledger      ports.LedgerRepository
	idempotency ports.IdempotencyRepository
	audit       ports.AuditRepository
	webhooks    ports.WebhookRepository
	transactor  ports.DBTransactor
	guard       ports.MerchantGuard
	health      ports.HealthChecker
	close       func()
}

func openStorage(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*storage, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := pgStorage.NewPool(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return &storage{
			merchants:   pgStorage.NewMerchantRepo(pool),
			payments:    pgStorage.NewPaymentRepo(pool),
			withdrawals: pgStorage.NewWithdrawalRepo(pool),
			ledger:      pgStorage.NewLedgerRepo(pool),
			idempotency: pgStorage.NewIdempotencyRepo(pool),
			audit:       pgStorage.NewAuditRepo(pool),
			webhooks:    pgStorage.NewWebhookRepo(pool),
			transactor:  pgStorage.NewTransactor(pool),
			guard:       pgStorage.NewGuard(cfg.LockTimeout),
			health:      pgStorage.NewHealthCheck(pool),
			close:       pool.Close,
		}, nil

	case config.DriverMemory:
		log.Warn().Msg("using in-memory storage; all data is lost on exit")
		store := memory.NewStore()
		return &storage{
			merchants:   memory.NewMerchantRepo(store),
			payments:    memory.NewPaymentRepo(store),
			withdrawals: memory.NewWithdrawalRepo(store),
			ledger:      memory.NewLedgerRepo(store),
			idempotency: memory.NewIdempotencyRepo(store),
			audit:       memory.NewAuditRepo(store),
			webhooks:    memory.NewWebhookRepo(store),
			transactor:  memory.NewTransactor(store),
			guard:       memory.NewGuard(store, cfg.LockTimeout),
			health:      memory.HealthCheck{},
			close:       func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}
