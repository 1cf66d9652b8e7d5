package payout

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"namereg/internal/registry/models"
	"namereg/pkg/domain"
)

// Ledger is an in-process payout that credits balances in memory. It backs
// local runs without a treasury endpoint and records every withdrawal.
type Ledger struct {
	mu       sync.Mutex
	balances map[domain.Identity]domain.Amount
	sent     []models.Withdrawal
	seen     map[uuid.UUID]struct{}
	fail     error
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[domain.Identity]domain.Amount),
		seen:     make(map[uuid.UUID]struct{}),
	}
}

// Send credits w.To once per withdrawal ID; resending an ID already credited
// succeeds without crediting again. It fails with the error set by FailWith,
// if any.
func (l *Ledger) Send(_ context.Context, w models.Withdrawal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return l.fail
	}
	if _, done := l.seen[w.ID]; done {
		return nil
	}
	l.seen[w.ID] = struct{}{}
	l.balances[w.To] = l.balances[w.To].Add(w.Amount)
	l.sent = append(l.sent, w)
	return nil
}

// FailWith makes subsequent sends return err. A nil err restores success.
func (l *Ledger) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail = err
}

// BalanceOf returns everything credited to identity.
func (l *Ledger) BalanceOf(identity domain.Identity) domain.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[identity]
}

// Sent returns the withdrawals credited so far.
func (l *Ledger) Sent() []models.Withdrawal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Withdrawal(nil), l.sent...)
}
