package memory

import (
	"context"
	"fmt"
	"sort"

	"settlement-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LedgerRepo implements ports.LedgerRepository.
type LedgerRepo struct{ store *Store }

func NewLedgerRepo(store *Store) *LedgerRepo { return &LedgerRepo{store: store} }

// Append stages entry on tx. A key already committed or staged in tx yields
// the existing entry with created=false.
func (r *LedgerRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) (*domain.LedgerEntry, bool, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, false, err
	}
	if t == nil {
		return nil, false, fmt.Errorf("ledger append requires a transaction")
	}
	if !e.Amount.IsPositive() {
		return nil, false, fmt.Errorf("ledger entry amount must be positive, got %s", e.Amount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	k := ledgerKey{e.MerchantID, e.Kind, e.Reference}
	for i := range t.entries {
		staged := t.entries[i]
		if (ledgerKey{staged.MerchantID, staged.Kind, staged.Reference}) == k {
			return &staged, false, nil
		}
	}

	s := r.store
	s.mu.RLock()
	existing, ok := s.ledgerIndex[k]
	s.mu.RUnlock()
	if ok {
		return &existing, false, nil
	}

	stored := *e
	stored.Seq = s.nextSeq()
	t.entries = append(t.entries, stored)
	return &stored, true, nil
}

// Balance folds the merchant's committed entries plus any staged on tx.
func (r *LedgerRepo) Balance(ctx context.Context, tx pgx.Tx, merchantID string) (decimal.Decimal, error) {
	t, err := asTx(tx)
	if err != nil {
		return decimal.Zero, err
	}

	balance := decimal.Zero
	if t != nil {
		t.mu.Lock()
		for i := range t.entries {
			if t.entries[i].MerchantID == merchantID {
				balance = balance.Add(t.entries[i].Signed())
			}
		}
		t.mu.Unlock()
	}

	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	return balance.Add(domain.Replay(s.entries[merchantID])), nil
}

func (r *LedgerRepo) EntriesFor(ctx context.Context, merchantID string, afterSeq int64, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		return []domain.LedgerEntry{}, nil
	}
	s := r.store
	s.mu.RLock()
	all := s.entries[merchantID]
	out := make([]domain.LedgerEntry, 0, min(limit, len(all)))
	for _, e := range all {
		if e.Seq > afterSeq {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
