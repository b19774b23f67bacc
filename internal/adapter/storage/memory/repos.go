package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"settlement-gateway/internal/core/domain"
	"settlement-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// MerchantRepo implements ports.MerchantRepository.
type MerchantRepo struct{ store *Store }

func NewMerchantRepo(store *Store) *MerchantRepo { return &MerchantRepo{store: store} }

func (r *MerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.merchants[m.ID]; ok {
		return fmt.Errorf("insert merchant %s: %w", m.ID, ports.ErrConflict)
	}
	for _, existing := range s.merchants {
		if existing.AccessKey == m.AccessKey {
			return fmt.Errorf("insert merchant %s: %w", m.ID, ports.ErrConflict)
		}
	}
	cp := *m
	s.merchants[m.ID] = &cp
	return nil
}

func (r *MerchantRepo) GetByID(ctx context.Context, id string) (*domain.Merchant, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.merchants[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *MerchantRepo) GetByAccessKey(ctx context.Context, accessKey string) (*domain.Merchant, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.merchants {
		if m.AccessKey == accessKey {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct{ store *Store }

func NewPaymentRepo(store *Store) *PaymentRepo { return &PaymentRepo{store: store} }

func (r *PaymentRepo) Create(ctx context.Context, p *domain.Payment) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ID]; ok {
		return false, nil
	}
	cp := *p
	s.payments[p.ID] = &cp
	return true, nil
}

func (r *PaymentRepo) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// MarkPaid stages the PENDING→PAID flip. It sees the transaction's own writes.
func (r *PaymentRepo) MarkPaid(ctx context.Context, tx pgx.Tx, id string, paidAt time.Time) (bool, error) {
	t, err := asTx(tx)
	if err != nil {
		return false, err
	}
	if t == nil {
		return false, fmt.Errorf("mark payment paid requires a transaction")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	p := r.lookup(t, id)
	if p == nil || p.Status != domain.PaymentStatusPending {
		return false, nil
	}
	cp := *p
	cp.Status = domain.PaymentStatusPaid
	cp.PaidAt = &paidAt
	t.payments[id] = &cp
	return true, nil
}

// lookup returns the staged or committed payment. Caller holds t.mu.
func (r *PaymentRepo) lookup(t *Tx, id string) *domain.Payment {
	if p, ok := t.payments[id]; ok {
		return p
	}
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payments[id]
}

// WithdrawalRepo implements ports.WithdrawalRepository.
type WithdrawalRepo struct{ store *Store }

func NewWithdrawalRepo(store *Store) *WithdrawalRepo { return &WithdrawalRepo{store: store} }

func (r *WithdrawalRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Withdrawal) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("insert withdrawal requires a transaction")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if r.lookup(t, w.ID) != nil {
		return fmt.Errorf("insert withdrawal %s: %w", w.ID, ports.ErrConflict)
	}
	cp := *w
	t.withdrawals[w.ID] = &cp
	return nil
}

func (r *WithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.withdrawals[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *WithdrawalRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Withdrawal, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return r.GetByID(ctx, id)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	w := r.lookup(t, id)
	if w == nil {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *WithdrawalRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.WithdrawalStatus, reason *string, decidedAt time.Time) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("update withdrawal status requires a transaction")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	w := r.lookup(t, id)
	if w == nil || w.Status != domain.WithdrawalStatusRequested {
		return fmt.Errorf("withdrawal %s is not %s", id, domain.WithdrawalStatusRequested)
	}
	cp := *w
	cp.Status = status
	cp.RejectionReason = reason
	cp.DecidedAt = &decidedAt
	t.withdrawals[id] = &cp
	return nil
}

func (r *WithdrawalRepo) SumRequested(ctx context.Context, tx pgx.Tx, merchantID string) (decimal.Decimal, error) {
	t, err := asTx(tx)
	if err != nil {
		return decimal.Zero, err
	}

	var staged map[uuid.UUID]*domain.Withdrawal
	if t != nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		staged = t.withdrawals
	}

	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for id, w := range s.withdrawals {
		if sw, ok := staged[id]; ok {
			w = sw
		}
		if w.MerchantID == merchantID && w.Status == domain.WithdrawalStatusRequested {
			total = total.Add(w.Amount)
		}
	}
	for id, w := range staged {
		if _, committed := s.withdrawals[id]; committed {
			continue
		}
		if w.MerchantID == merchantID && w.Status == domain.WithdrawalStatusRequested {
			total = total.Add(w.Amount)
		}
	}
	return total, nil
}

// List returns committed withdrawals newest first.
func (r *WithdrawalRepo) List(ctx context.Context, params ports.WithdrawalListParams) ([]domain.Withdrawal, int64, error) {
	s := r.store
	s.mu.RLock()
	var matched []domain.Withdrawal
	for _, w := range s.withdrawals {
		if params.MerchantID != nil && w.MerchantID != *params.MerchantID {
			continue
		}
		if params.Status != nil && w.Status != *params.Status {
			continue
		}
		matched = append(matched, *w)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() > matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := (params.Page - 1) * params.PageSize
	if start < 0 || start >= len(matched) {
		return nil, total, nil
	}
	end := min(start+params.PageSize, len(matched))
	return matched[start:end], total, nil
}

// lookup returns the staged or committed withdrawal. Caller holds t.mu.
func (r *WithdrawalRepo) lookup(t *Tx, id uuid.UUID) *domain.Withdrawal {
	if w, ok := t.withdrawals[id]; ok {
		return w
	}
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.withdrawals[id]
}

// IdempotencyRepo implements ports.IdempotencyRepository.
type IdempotencyRepo struct{ store *Store }

func NewIdempotencyRepo(store *Store) *IdempotencyRepo { return &IdempotencyRepo{store: store} }

func (r *IdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, rec *domain.IdempotencyRecord) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("insert idempotency key requires a transaction")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := *rec
	t.idempotency = append(t.idempotency, &cp)
	return nil
}

func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.idempotency[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct{ store *Store }

func NewAuditRepo(store *Store) *AuditRepo { return &AuditRepo{store: store} }

func (r *AuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, *entry)
	return nil
}

// WebhookRepo implements ports.WebhookRepository.
type WebhookRepo struct{ store *Store }

func NewWebhookRepo(store *Store) *WebhookRepo { return &WebhookRepo{store: store} }

func (r *WebhookRepo) Create(ctx context.Context, l *domain.WebhookDeliveryLog) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, *l)
	return nil
}

// Deliveries returns the recorded webhook attempts in insertion order.
func (r *WebhookRepo) Deliveries() []domain.WebhookDeliveryLog {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.WebhookDeliveryLog(nil), s.deliveries...)
}
