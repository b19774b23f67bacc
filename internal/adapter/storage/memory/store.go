// Package memory is a process-local storage driver. It implements the same
// repository ports as the postgres package, including transactional
// visibility and the per-merchant guard, for single-node runs and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"settlement-gateway/internal/core/domain"
	"settlement-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ledgerKey struct {
	merchantID string
	kind       domain.EntryKind
	reference  string
}

// Store holds every table. Writes made through a Tx are staged on the Tx and
// applied together on Commit.
type Store struct {
	mu          sync.RWMutex
	merchants   map[string]*domain.Merchant
	payments    map[string]*domain.Payment
	withdrawals map[uuid.UUID]*domain.Withdrawal
	entries     map[string][]domain.LedgerEntry
	ledgerIndex map[ledgerKey]domain.LedgerEntry
	idempotency map[string]*domain.IdempotencyRecord
	audit       []domain.AuditLog
	deliveries  []domain.WebhookDeliveryLog
	seq         int64

	locks *keyedMutex
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		merchants:   make(map[string]*domain.Merchant),
		payments:    make(map[string]*domain.Payment),
		withdrawals: make(map[uuid.UUID]*domain.Withdrawal),
		entries:     make(map[string][]domain.LedgerEntry),
		ledgerIndex: make(map[ledgerKey]domain.LedgerEntry),
		idempotency: make(map[string]*domain.IdempotencyRecord),
		locks:       newKeyedMutex(),
	}
}

func (s *Store) nextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Tx is the in-memory pgx.Tx. Only Commit and Rollback are meaningful;
// the SQL methods of the embedded interface are never called by the
// memory repositories.
type Tx struct {
	pgx.Tx

	store       *Store
	mu          sync.Mutex
	payments    map[string]*domain.Payment
	withdrawals map[uuid.UUID]*domain.Withdrawal
	entries     []domain.LedgerEntry
	idempotency []*domain.IdempotencyRecord
	held        map[string]func()
	done        bool
}

func (s *Store) begin() *Tx {
	return &Tx{
		store:       s,
		payments:    make(map[string]*domain.Payment),
		withdrawals: make(map[uuid.UUID]*domain.Withdrawal),
		held:        make(map[string]func()),
	}
}

// Commit applies the staged writes atomically, then releases merchant locks.
func (t *Tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	defer t.releaseLocks()

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range t.entries {
		k := ledgerKey{e.MerchantID, e.Kind, e.Reference}
		if _, exists := s.ledgerIndex[k]; exists {
			return fmt.Errorf("commit: duplicate ledger reference %s/%s/%s", e.MerchantID, e.Kind, e.Reference)
		}
	}
	for _, rec := range t.idempotency {
		if _, exists := s.idempotency[rec.Key]; exists {
			return fmt.Errorf("commit: idempotency key %q: %w", rec.Key, errDuplicateKey)
		}
	}

	for id, p := range t.payments {
		s.payments[id] = p
	}
	for id, w := range t.withdrawals {
		s.withdrawals[id] = w
	}
	for _, e := range t.entries {
		s.entries[e.MerchantID] = append(s.entries[e.MerchantID], e)
		s.ledgerIndex[ledgerKey{e.MerchantID, e.Kind, e.Reference}] = e
	}
	for _, rec := range t.idempotency {
		s.idempotency[rec.Key] = rec
	}
	return nil
}

// Rollback discards the staged writes and releases merchant locks.
func (t *Tx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.releaseLocks()
	return nil
}

func (t *Tx) releaseLocks() {
	for _, unlock := range t.held {
		unlock()
	}
	t.held = nil
}

var errDuplicateKey = errors.New("duplicate key")

// asTx recovers the memory transaction from a pgx.Tx handed in by a service.
func asTx(tx pgx.Tx) (*Tx, error) {
	if tx == nil {
		return nil, nil
	}
	t, ok := tx.(*Tx)
	if !ok {
		return nil, fmt.Errorf("memory store: foreign transaction type %T", tx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil, pgx.ErrTxClosed
	}
	return t, nil
}

// Transactor implements ports.DBTransactor.
type Transactor struct {
	store *Store
}

func NewTransactor(store *Store) *Transactor {
	return &Transactor{store: store}
}

func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.store.begin(), nil
}

// Guard implements ports.MerchantGuard with one mutex per merchant held
// until the transaction ends. Locking the same merchant twice in one
// transaction is a no-op.
type Guard struct {
	store       *Store
	lockTimeout time.Duration
}

// NewGuard creates a Guard. A zero timeout waits until ctx is done.
func NewGuard(store *Store, lockTimeout time.Duration) *Guard {
	return &Guard{store: store, lockTimeout: lockTimeout}
}

func (g *Guard) Lock(ctx context.Context, tx pgx.Tx, merchantID string) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("merchant guard requires a transaction")
	}

	t.mu.Lock()
	_, held := t.held[merchantID]
	t.mu.Unlock()
	if held {
		return nil
	}

	waitCtx := ctx
	if g.lockTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, g.lockTimeout)
		defer cancel()
	}

	unlock, err := g.store.locks.lock(waitCtx, merchantID)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return apperror.ErrLockTimeout(fmt.Errorf("merchant %s: %w", merchantID, err))
		}
		return fmt.Errorf("acquire merchant lock: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		unlock()
		return pgx.ErrTxClosed
	}
	t.held[merchantID] = unlock
	return nil
}

// HealthCheck implements ports.HealthChecker. The memory store is always up.
type HealthCheck struct{}

func (HealthCheck) Ping(ctx context.Context) error { return ctx.Err() }
func (HealthCheck) Name() string                   { return "memory" }
