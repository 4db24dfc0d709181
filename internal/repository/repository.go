package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"leadmarket-backend/internal/domain"
)

type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	ListIDs(ctx context.Context) ([]int64, error)
	SetFrozen(ctx context.Context, id int64, frozen bool, reason string) error
}

type LeadRepository interface {
	Create(ctx context.Context, lead *domain.Lead) error
	GetByID(ctx context.Context, id int64) (*domain.Lead, error)
	ListAvailable(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, int32, error)
	// UpdateDetails is the admin edit path. It never writes the status column
	// and refuses price changes on sold leads.
	UpdateDetails(ctx context.Context, id int64, details domain.LeadDetails) (*domain.Lead, error)
	// ExpireBefore moves available leads whose expiry is before now to expired.
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)
}

type PurchaseRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Purchase, error)
	ListByAccount(ctx context.Context, accountID int64, page, pageSize int32) ([]domain.Purchase, int32, error)
	CountByLead(ctx context.Context, leadID int64) (int32, error)
}

type LedgerRepository interface {
	// ListByAccount returns entries in append order.
	ListByAccount(ctx context.Context, accountID int64) ([]domain.LedgerEntry, error)
	SumByAccount(ctx context.Context, accountID int64) (decimal.Decimal, int, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
	List(ctx context.Context, accountID int64, limit int32, offset int64) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, id, accountID int64) error
}

// DispatchRepository is the outbox of notifications whose delivery failed.
type DispatchRepository interface {
	Save(ctx context.Context, rec *domain.DispatchRecord) error
	ListPending(ctx context.Context, limit int32) ([]domain.DispatchRecord, error)
	MarkDelivered(ctx context.Context, eventID uuid.UUID) error
	RecordFailure(ctx context.Context, eventID uuid.UUID, lastErr string) error
}

// TxStore is the set of operations available inside one atomic unit. Every
// balance or lead-status mutation goes through it.
type TxStore interface {
	// LockAccount reads the account and holds it until the unit ends.
	LockAccount(ctx context.Context, id int64) (*domain.Account, error)
	// UpdateAccountBalance writes the cached balance if the version still
	// matches; otherwise it returns domain.ErrConcurrentModification.
	UpdateAccountBalance(ctx context.Context, id int64, balance decimal.Decimal, expectedVersion int64) error
	FreezeAccount(ctx context.Context, id int64, reason string) error

	LockLead(ctx context.Context, id int64) (*domain.Lead, error)
	// TransitionLeadStatus is a compare-and-set on status and version. A lost
	// race returns domain.ErrLeadUnavailable.
	TransitionLeadStatus(ctx context.Context, id int64, from, to domain.LeadStatus, expectedVersion int64) error

	CreatePurchase(ctx context.Context, p *domain.Purchase) error
	LockPurchase(ctx context.Context, id int64) (*domain.Purchase, error)
	MarkPurchaseRefunded(ctx context.Context, id int64, at time.Time) error

	// AppendLedgerEntry returns domain.ErrDuplicateDeposit when the external
	// ref is taken and domain.ErrAlreadyRefunded for a second refund of the
	// same purchase.
	AppendLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error
	// ListLedgerEntries reads the account's entries in append order. Hold the
	// account lock first so no append interleaves.
	ListLedgerEntries(ctx context.Context, accountID int64) ([]domain.LedgerEntry, error)
	// FindDepositByExternalRef returns nil, nil when no deposit carries ref.
	FindDepositByExternalRef(ctx context.Context, ref string) (*domain.LedgerEntry, error)
}

type Transactor interface {
	// WithTx runs fn inside one atomic unit. fn returning an error rolls the
	// whole unit back.
	WithTx(ctx context.Context, fn func(tx TxStore) error) error
}
