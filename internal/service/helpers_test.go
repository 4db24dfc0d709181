package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/metrics"
	"leadmarket-backend/internal/repository"
	"leadmarket-backend/internal/repository/memory"
	"leadmarket-backend/internal/security"
)

type publishedEvent struct {
	kind    domain.DispatchKind
	eventID uuid.UUID
	payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, kind domain.DispatchKind, eventID uuid.UUID, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{kind: kind, eventID: eventID, payload: payload})
	return p.err
}

func (p *recordingPublisher) count(kind domain.DispatchKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

// failingTransactor runs units against the real store but fails every ledger
// append, so the whole unit must roll back.
type failingTransactor struct {
	inner repository.Transactor
	err   error
}

func (f failingTransactor) WithTx(ctx context.Context, fn func(tx repository.TxStore) error) error {
	return f.inner.WithTx(ctx, func(tx repository.TxStore) error {
		return fn(failingTx{TxStore: tx, err: f.err})
	})
}

type failingTx struct {
	repository.TxStore
	err error
}

func (f failingTx) AppendLedgerEntry(context.Context, *domain.LedgerEntry) error {
	return f.err
}

type testEnv struct {
	store     *memory.Store
	publisher *recordingPublisher
	metrics   *metrics.Metrics
	ledger    LedgerService
	purchases PurchaseService
	deposits  DepositService
	leads     LeadService
	accounts  AccountService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithTransactor(t, nil)
}

func newTestEnvWithTransactor(t *testing.T, wrap func(repository.Transactor) repository.Transactor) *testEnv {
	t.Helper()
	store := memory.NewStore()
	var tx repository.Transactor = store
	if wrap != nil {
		tx = wrap(store)
	}
	env := &testEnv{
		store:     store,
		publisher: &recordingPublisher{},
		metrics:   metrics.NewNop(),
	}
	env.ledger = NewLedgerService(store, store.LedgerRepository, store.AccountRepository, nil, nil, "", env.metrics)
	env.purchases = NewPurchaseService(tx, store.PurchaseRepository, store.AccountRepository, env.ledger, env.publisher, nil, env.metrics)
	env.deposits = NewDepositService(tx, env.ledger, env.publisher, nil, env.metrics)
	env.leads = NewLeadService(store.LeadRepository, nil, 30*24*time.Hour, env.metrics)
	env.accounts = NewAccountService(store.AccountRepository, env.ledger, security.NewTokenManager("test-secret", time.Hour))
	return env
}

func (e *testEnv) newAccount(t *testing.T, email string) *domain.Account {
	t.Helper()
	a := &domain.Account{Email: email, Name: email, Role: domain.AccountRoleClient}
	require.NoError(t, e.store.AccountRepository.Create(context.Background(), a))
	return a
}

func (e *testEnv) fund(t *testing.T, accountID int64, amount string) *domain.LedgerEntry {
	t.Helper()
	entry, err := e.deposits.Credit(context.Background(), CreditRequest{
		AccountID:   accountID,
		Amount:      decimal.RequireFromString(amount),
		Method:      domain.PaymentMethodCard,
		ExternalRef: uuid.NewString(),
	})
	require.NoError(t, err)
	return entry
}

func (e *testEnv) newLead(t *testing.T, price string) *domain.Lead {
	t.Helper()
	l := &domain.Lead{
		Name:     "Acme Solar",
		Email:    "owner@acme.test",
		Phone:    "+1 555 0100",
		Category: "solar",
		Region:   "south",
		Price:    decimal.RequireFromString(price),
	}
	require.NoError(t, e.leads.CreateLead(context.Background(), l))
	return l
}

func (e *testEnv) balance(t *testing.T, accountID int64) decimal.Decimal {
	t.Helper()
	a, err := e.store.AccountRepository.GetByID(context.Background(), accountID)
	require.NoError(t, err)
	return a.Balance
}

func (e *testEnv) entries(t *testing.T, accountID int64) []domain.LedgerEntry {
	t.Helper()
	entries, err := e.store.LedgerRepository.ListByAccount(context.Background(), accountID)
	require.NoError(t, err)
	return entries
}

func (e *testEnv) leadStatus(t *testing.T, leadID int64) domain.LeadStatus {
	t.Helper()
	l, err := e.store.LeadRepository.GetByID(context.Background(), leadID)
	require.NoError(t, err)
	return l.Status
}

func countKind(entries []domain.LedgerEntry, kind domain.LedgerEntryKind) int {
	n := 0
	for _, e := range entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var errDiskFull = errors.New("disk full")
