package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"leadmarket-backend/internal/domain"
)

type accountRepository struct{ s *Store }

func (r *accountRepository) Create(_ context.Context, a *domain.Account) error {
	return r.s.write(func(st *state) error {
		for _, existing := range st.accounts {
			if strings.EqualFold(existing.Email, a.Email) {
				return domain.ErrEmailTaken
			}
		}
		st.nextAccountID++
		now := r.s.now()
		a.ID = st.nextAccountID
		a.Balance = decimal.Zero
		a.Version = 0
		a.CreatedAt = now
		a.UpdatedAt = now
		st.accounts[a.ID] = *a
		return nil
	})
}

func (r *accountRepository) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	var (
		a  domain.Account
		ok bool
	)
	r.s.read(func(st *state) { a, ok = st.accounts[id] })
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &a, nil
}

func (r *accountRepository) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	var found *domain.Account
	r.s.read(func(st *state) {
		for _, a := range st.accounts {
			if strings.EqualFold(a.Email, email) {
				a := a
				found = &a
				return
			}
		}
	})
	if found == nil {
		return nil, domain.ErrAccountNotFound
	}
	return found, nil
}

func (r *accountRepository) ListIDs(_ context.Context) ([]int64, error) {
	var ids []int64
	r.s.read(func(st *state) {
		for id := range st.accounts {
			ids = append(ids, id)
		}
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *accountRepository) SetFrozen(_ context.Context, id int64, frozen bool, reason string) error {
	return r.s.write(func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return domain.ErrAccountNotFound
		}
		a.Frozen = frozen
		a.FrozenReason = reason
		a.UpdatedAt = r.s.now()
		st.accounts[id] = a
		return nil
	})
}

type leadRepository struct{ s *Store }

func (r *leadRepository) Create(_ context.Context, l *domain.Lead) error {
	return r.s.write(func(st *state) error {
		st.nextLeadID++
		now := r.s.now()
		l.ID = st.nextLeadID
		if l.Status == "" {
			l.Status = domain.LeadStatusAvailable
		}
		l.Version = 0
		l.CreatedAt = now
		l.UpdatedAt = now
		st.leads[l.ID] = *l
		return nil
	})
}

func (r *leadRepository) GetByID(_ context.Context, id int64) (*domain.Lead, error) {
	var (
		l  domain.Lead
		ok bool
	)
	r.s.read(func(st *state) { l, ok = st.leads[id] })
	if !ok {
		return nil, domain.ErrLeadNotFound
	}
	return &l, nil
}

func (r *leadRepository) ListAvailable(_ context.Context, filter domain.LeadFilter) ([]domain.Lead, int32, error) {
	filter.Normalize()
	var matched []domain.Lead
	r.s.read(func(st *state) {
		for _, l := range st.leads {
			l := l
			if filter.Matches(&l) {
				matched = append(matched, l)
			}
		}
	})
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	start, end := paginate(len(matched), filter.Page, filter.PageSize)
	return matched[start:end], int32(len(matched)), nil
}

func (r *leadRepository) UpdateDetails(_ context.Context, id int64, d domain.LeadDetails) (*domain.Lead, error) {
	var out domain.Lead
	err := r.s.write(func(st *state) error {
		l, ok := st.leads[id]
		if !ok {
			return domain.ErrLeadNotFound
		}
		if d.Price != nil {
			if l.Status == domain.LeadStatusSold {
				return domain.ErrLeadSold
			}
			if !d.Price.IsPositive() {
				return fmt.Errorf("%w: price must be positive", domain.ErrInvalidAmount)
			}
			l.Price = *d.Price
		}
		applyDetails(&l, d)
		l.Version++
		l.UpdatedAt = r.s.now()
		st.leads[id] = l
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func applyDetails(l *domain.Lead, d domain.LeadDetails) {
	if d.Name != nil {
		l.Name = *d.Name
	}
	if d.Email != nil {
		l.Email = *d.Email
	}
	if d.Phone != nil {
		l.Phone = *d.Phone
	}
	if d.Company != nil {
		l.Company = *d.Company
	}
	if d.Category != nil {
		l.Category = *d.Category
	}
	if d.Region != nil {
		l.Region = *d.Region
	}
	if d.Notes != nil {
		l.Notes = *d.Notes
	}
	if d.QualityScore != nil {
		l.QualityScore = *d.QualityScore
	}
}

func (r *leadRepository) ExpireBefore(_ context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.s.write(func(st *state) error {
		for id, l := range st.leads {
			if l.Status != domain.LeadStatusAvailable || l.ExpiresAt == nil || !l.ExpiresAt.Before(now) {
				continue
			}
			l.Status = domain.LeadStatusExpired
			l.Version++
			l.UpdatedAt = now
			st.leads[id] = l
			n++
		}
		return nil
	})
	return n, err
}

type purchaseRepository struct{ s *Store }

func (r *purchaseRepository) GetByID(_ context.Context, id int64) (*domain.Purchase, error) {
	var (
		p  domain.Purchase
		ok bool
	)
	r.s.read(func(st *state) { p, ok = st.purchases[id] })
	if !ok {
		return nil, domain.ErrPurchaseNotFound
	}
	return &p, nil
}

func (r *purchaseRepository) ListByAccount(_ context.Context, accountID int64, page, pageSize int32) ([]domain.Purchase, int32, error) {
	var out []domain.Purchase
	r.s.read(func(st *state) {
		for _, p := range st.purchases {
			if p.AccountID != accountID {
				continue
			}
			if l, ok := st.leads[p.LeadID]; ok {
				l := l
				p.Lead = &l
			}
			out = append(out, p)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	start, end := paginate(len(out), page, pageSize)
	return out[start:end], int32(len(out)), nil
}

func (r *purchaseRepository) CountByLead(_ context.Context, leadID int64) (int32, error) {
	var n int32
	r.s.read(func(st *state) {
		for _, p := range st.purchases {
			if p.LeadID == leadID {
				n++
			}
		}
	})
	return n, nil
}

type ledgerRepository struct{ s *Store }

func (r *ledgerRepository) ListByAccount(_ context.Context, accountID int64) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	r.s.read(func(st *state) {
		for _, e := range st.ledger {
			if e.AccountID == accountID {
				out = append(out, e)
			}
		}
	})
	return out, nil
}

func (r *ledgerRepository) SumByAccount(_ context.Context, accountID int64) (decimal.Decimal, int, error) {
	sum := decimal.Zero
	n := 0
	r.s.read(func(st *state) {
		for _, e := range st.ledger {
			if e.AccountID == accountID {
				sum = sum.Add(e.Amount)
				n++
			}
		}
	})
	return sum, n, nil
}

type notificationRepository struct{ s *Store }

func (r *notificationRepository) Create(_ context.Context, n *domain.Notification) error {
	return r.s.write(func(st *state) error {
		st.nextNotificationID++
		n.ID = st.nextNotificationID
		n.CreatedAt = r.s.now()
		st.notifications[n.ID] = *n
		return nil
	})
}

func (r *notificationRepository) List(_ context.Context, accountID int64, limit int32, offset int64) ([]domain.Notification, int32, error) {
	var out []domain.Notification
	r.s.read(func(st *state) {
		for _, n := range st.notifications {
			if n.AccountID == accountID {
				out = append(out, n)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	if offset < 0 {
		offset = 0
	}
	if offset > int64(total) {
		offset = int64(total)
	}
	start := int(offset)
	end := start + int(limit)
	if limit <= 0 || end > total {
		end = total
	}
	return out[start:end], int32(total), nil
}

func (r *notificationRepository) MarkAsRead(_ context.Context, id, accountID int64) error {
	return r.s.write(func(st *state) error {
		n, ok := st.notifications[id]
		if !ok || n.AccountID != accountID {
			return domain.ErrNotificationNotFound
		}
		n.IsRead = true
		st.notifications[id] = n
		return nil
	})
}

type dispatchRepository struct{ s *Store }

func (r *dispatchRepository) Save(_ context.Context, rec *domain.DispatchRecord) error {
	return r.s.write(func(st *state) error {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = r.s.now()
		}
		if _, exists := st.dispatches[rec.EventID]; !exists {
			st.dispatchOrder = append(st.dispatchOrder, rec.EventID)
		}
		st.dispatches[rec.EventID] = *rec
		return nil
	})
}

func (r *dispatchRepository) ListPending(_ context.Context, limit int32) ([]domain.DispatchRecord, error) {
	var out []domain.DispatchRecord
	r.s.read(func(st *state) {
		for _, id := range st.dispatchOrder {
			rec := st.dispatches[id]
			if rec.DeliveredAt != nil {
				continue
			}
			out = append(out, rec)
			if limit > 0 && int32(len(out)) >= limit {
				return
			}
		}
	})
	return out, nil
}

func (r *dispatchRepository) MarkDelivered(_ context.Context, eventID uuid.UUID) error {
	return r.s.write(func(st *state) error {
		rec, ok := st.dispatches[eventID]
		if !ok {
			return fmt.Errorf("dispatch %s not found", eventID)
		}
		now := r.s.now()
		rec.DeliveredAt = &now
		st.dispatches[eventID] = rec
		return nil
	})
}

func (r *dispatchRepository) RecordFailure(_ context.Context, eventID uuid.UUID, lastErr string) error {
	return r.s.write(func(st *state) error {
		rec, ok := st.dispatches[eventID]
		if !ok {
			return fmt.Errorf("dispatch %s not found", eventID)
		}
		rec.Attempts++
		rec.LastError = lastErr
		st.dispatches[eventID] = rec
		return nil
	})
}
