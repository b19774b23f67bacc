package postgres

import (
	"context"
	"fmt"
	"time"

	"settlement-gateway/pkg/apperror"

	"github.com/jackc/pgx/v5"
)

// Transactor implements ports.DBTransactor using pgxpool.Pool.
type Transactor struct {
	pool Pool
}

// NewTransactor creates a new Transactor wrapping the connection pool.
func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool}
}

// Begin starts a new database transaction.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return t.pool.Begin(ctx)
}

// Guard implements ports.MerchantGuard with a transaction-scoped advisory
// lock keyed on the merchant id. Postgres releases it on commit or rollback.
type Guard struct {
	lockTimeout time.Duration
}

// NewGuard creates a Guard. A zero timeout waits for the lock indefinitely.
func NewGuard(lockTimeout time.Duration) *Guard {
	return &Guard{lockTimeout: lockTimeout}
}

// Lock blocks until the merchant's advisory lock is held by tx.
// Waiting longer than the lock timeout yields apperror SYS_002.
func (g *Guard) Lock(ctx context.Context, tx pgx.Tx, merchantID string) error {
	if tx == nil {
		return fmt.Errorf("merchant guard requires a transaction")
	}

	if g.lockTimeout > 0 {
		_, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`,
			fmt.Sprintf("%dms", g.lockTimeout.Milliseconds()))
		if err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, merchantID)
	if err != nil {
		if hasSQLState(err, sqlstateLockNotAvailable) {
			return apperror.ErrLockTimeout(err)
		}
		return fmt.Errorf("acquire merchant lock: %w", err)
	}
	return nil
}
