package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"leadmarket-backend/internal/domain"
)

type txStore struct {
	st  *state
	now func() time.Time
}

func (t *txStore) LockAccount(_ context.Context, id int64) (*domain.Account, error) {
	a, ok := t.st.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &a, nil
}

func (t *txStore) UpdateAccountBalance(_ context.Context, id int64, balance decimal.Decimal, expectedVersion int64) error {
	a, ok := t.st.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if a.Version != expectedVersion {
		return fmt.Errorf("%w: account %d at version %d, expected %d", domain.ErrConcurrentModification, id, a.Version, expectedVersion)
	}
	a.Balance = balance
	a.Version++
	a.UpdatedAt = t.now()
	t.st.accounts[id] = a
	return nil
}

func (t *txStore) FreezeAccount(_ context.Context, id int64, reason string) error {
	a, ok := t.st.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.Frozen = true
	a.FrozenReason = reason
	a.UpdatedAt = t.now()
	t.st.accounts[id] = a
	return nil
}

func (t *txStore) LockLead(_ context.Context, id int64) (*domain.Lead, error) {
	l, ok := t.st.leads[id]
	if !ok {
		return nil, domain.ErrLeadNotFound
	}
	return &l, nil
}

func (t *txStore) TransitionLeadStatus(_ context.Context, id int64, from, to domain.LeadStatus, expectedVersion int64) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	l, ok := t.st.leads[id]
	if !ok {
		return domain.ErrLeadNotFound
	}
	if l.Status != from || l.Version != expectedVersion {
		return domain.ErrLeadUnavailable
	}
	now := t.now()
	l.Status = to
	l.Version++
	l.UpdatedAt = now
	if to == domain.LeadStatusSold {
		l.SoldAt = &now
	}
	t.st.leads[id] = l
	return nil
}

func (t *txStore) CreatePurchase(_ context.Context, p *domain.Purchase) error {
	for _, existing := range t.st.purchases {
		if existing.LeadID == p.LeadID {
			return fmt.Errorf("%w: purchase for lead %d already exists", domain.ErrLeadUnavailable, p.LeadID)
		}
	}
	t.st.nextPurchaseID++
	p.ID = t.st.nextPurchaseID
	if p.Status == "" {
		p.Status = domain.PurchaseStatusCompleted
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = t.now()
	}
	t.st.purchases[p.ID] = *p
	return nil
}

func (t *txStore) LockPurchase(_ context.Context, id int64) (*domain.Purchase, error) {
	p, ok := t.st.purchases[id]
	if !ok {
		return nil, domain.ErrPurchaseNotFound
	}
	return &p, nil
}

func (t *txStore) MarkPurchaseRefunded(_ context.Context, id int64, at time.Time) error {
	p, ok := t.st.purchases[id]
	if !ok {
		return domain.ErrPurchaseNotFound
	}
	if p.Status == domain.PurchaseStatusRefunded {
		return domain.ErrAlreadyRefunded
	}
	p.Status = domain.PurchaseStatusRefunded
	p.RefundedAt = &at
	t.st.purchases[id] = p
	return nil
}

func (t *txStore) AppendLedgerEntry(_ context.Context, e *domain.LedgerEntry) error {
	if e.ExternalRef != nil {
		if _, exists := t.st.externalRefs[*e.ExternalRef]; exists {
			return domain.ErrDuplicateDeposit
		}
	}
	if e.Kind == domain.LedgerEntryKindRefund && e.PurchaseID != nil {
		for _, existing := range t.st.ledger {
			if existing.Kind == domain.LedgerEntryKindRefund && existing.PurchaseID != nil && *existing.PurchaseID == *e.PurchaseID {
				return domain.ErrAlreadyRefunded
			}
		}
	}
	t.st.nextLedgerID++
	e.ID = t.st.nextLedgerID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.now()
	}
	t.st.ledger = append(t.st.ledger, *e)
	if e.ExternalRef != nil {
		t.st.externalRefs[*e.ExternalRef] = len(t.st.ledger) - 1
	}
	return nil
}

func (t *txStore) ListLedgerEntries(_ context.Context, accountID int64) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for _, e := range t.st.ledger {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *txStore) FindDepositByExternalRef(_ context.Context, ref string) (*domain.LedgerEntry, error) {
	idx, ok := t.st.externalRefs[ref]
	if !ok {
		return nil, nil
	}
	e := t.st.ledger[idx]
	if e.Kind != domain.LedgerEntryKindDeposit {
		return nil, nil
	}
	return &e, nil
}
