// Package memory is an in-process implementation of the repository
// interfaces. Atomic units are serialised behind a single lock and work on a
// copy of the state that replaces the committed state only when the unit
// succeeds, so a failed unit leaves no trace.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/repository"
)

type state struct {
	accounts      map[int64]domain.Account
	leads         map[int64]domain.Lead
	purchases     map[int64]domain.Purchase
	ledger        []domain.LedgerEntry
	externalRefs  map[string]int
	notifications map[int64]domain.Notification
	dispatches    map[uuid.UUID]domain.DispatchRecord
	dispatchOrder []uuid.UUID

	nextAccountID      int64
	nextLeadID         int64
	nextPurchaseID     int64
	nextLedgerID       int64
	nextNotificationID int64
}

func newState() *state {
	return &state{
		accounts:      make(map[int64]domain.Account),
		leads:         make(map[int64]domain.Lead),
		purchases:     make(map[int64]domain.Purchase),
		externalRefs:  make(map[string]int),
		notifications: make(map[int64]domain.Notification),
		dispatches:    make(map[uuid.UUID]domain.DispatchRecord),
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:           make(map[int64]domain.Account, len(s.accounts)),
		leads:              make(map[int64]domain.Lead, len(s.leads)),
		purchases:          make(map[int64]domain.Purchase, len(s.purchases)),
		ledger:             make([]domain.LedgerEntry, len(s.ledger)),
		externalRefs:       make(map[string]int, len(s.externalRefs)),
		notifications:      s.notifications,
		dispatches:         s.dispatches,
		dispatchOrder:      s.dispatchOrder,
		nextAccountID:      s.nextAccountID,
		nextLeadID:         s.nextLeadID,
		nextPurchaseID:     s.nextPurchaseID,
		nextLedgerID:       s.nextLedgerID,
		nextNotificationID: s.nextNotificationID,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.leads {
		c.leads[k] = v
	}
	for k, v := range s.purchases {
		c.purchases[k] = v
	}
	copy(c.ledger, s.ledger)
	for k, v := range s.externalRefs {
		c.externalRefs[k] = v
	}
	return c
}

// Store holds every repository backed by process memory.
type Store struct {
	mu    sync.RWMutex
	state *state
	now   func() time.Time

	repository.AccountRepository
	repository.LeadRepository
	repository.PurchaseRepository
	repository.LedgerRepository
	repository.NotificationRepository
	repository.DispatchRepository
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

func NewStoreWithClock(now func() time.Time) *Store {
	s := &Store{state: newState(), now: now}
	s.AccountRepository = &accountRepository{s: s}
	s.LeadRepository = &leadRepository{s: s}
	s.PurchaseRepository = &purchaseRepository{s: s}
	s.LedgerRepository = &ledgerRepository{s: s}
	s.NotificationRepository = &notificationRepository{s: s}
	s.DispatchRepository = &dispatchRepository{s: s}
	return s
}

// WithTx implements repository.Transactor.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.TxStore) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(&txStore{st: working, now: s.now}); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

func (s *Store) write(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func paginate(total int, page, pageSize int32) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = domain.DefaultPageSize
	}
	offset := domain.PageOffset(page, pageSize)
	if offset > int64(total) {
		return total, total
	}
	start := int(offset)
	end := start + int(pageSize)
	if end > total {
		end = total
	}
	return start, end
}
