package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/repository"
)

type AccountService interface {
	Register(ctx context.Context, email, name, password string, role domain.AccountRole) (*domain.Account, error)
	// Authenticate returns the account and a signed access token.
	Authenticate(ctx context.Context, email, password string) (*domain.Account, string, error)
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	GetBalance(ctx context.Context, id int64) (decimal.Decimal, error)
}

type LedgerService interface {
	// Append must be called with the caller's TxStore so the entry and the
	// cached balance commit together with the caller's other writes.
	Append(ctx context.Context, tx repository.TxStore, req AppendRequest) (*domain.LedgerEntry, error)
	GetHistory(ctx context.Context, accountID int64) ([]domain.LedgerEntry, error)
	GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error)
	Reconcile(ctx context.Context, accountID int64) (*domain.ReconciliationResult, error)
	ReconcileAll(ctx context.Context) (*domain.ReconciliationReport, error)
}

type PurchaseService interface {
	Purchase(ctx context.Context, accountID, leadID int64) (*domain.Purchase, error)
	GetPurchaseHistory(ctx context.Context, accountID int64, page, pageSize int32) ([]domain.Purchase, int32, error)
	Refund(ctx context.Context, purchaseID int64, reason string) (*domain.LedgerEntry, error)
}

type DepositService interface {
	// Credit returns the original entry together with ErrDuplicateDeposit when
	// the external reference was already applied.
	Credit(ctx context.Context, req CreditRequest) (*domain.LedgerEntry, error)
}

type LeadService interface {
	CreateLead(ctx context.Context, lead *domain.Lead) error
	GetLead(ctx context.Context, id int64) (*domain.Lead, error)
	ListAvailableLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, int32, error)
	UpdateLeadDetails(ctx context.Context, id int64, details domain.LeadDetails) (*domain.Lead, error)
	ExpireLeads(ctx context.Context, now time.Time) (int64, error)
}

type NotificationService interface {
	GetNotifications(ctx context.Context, accountID int64, page, pageSize int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, accountID, notificationID int64) error
	Deliver(ctx context.Context, rec domain.DispatchRecord) error
}

type EmailService interface {
	SendPurchaseReceipt(ctx context.Context, to, name string, lead *domain.Lead, price decimal.Decimal) error
	SendDepositReceipt(ctx context.Context, to, name string, amount, balance decimal.Decimal) error
	SendLedgerAlert(ctx context.Context, to string, mismatch *domain.LedgerMismatchError) error
}

// EventPublisher receives post-commit events. Implementations must not block.
type EventPublisher interface {
	Publish(ctx context.Context, kind domain.DispatchKind, eventID uuid.UUID, payload any) error
}

type AppendRequest struct {
	AccountID     int64
	Kind          domain.LedgerEntryKind
	Amount        decimal.Decimal
	Description   string
	ExternalRef   *string
	PaymentMethod domain.PaymentMethod
	PurchaseID    *int64
}

type CreditRequest struct {
	AccountID   int64                `json:"account_id" validate:"required,gt=0"`
	Amount      decimal.Decimal      `json:"amount"`
	Method      domain.PaymentMethod `json:"payment_method" validate:"required,oneof=card pix manual"`
	ExternalRef string               `json:"external_ref" validate:"required,max=255"`
}

// DepositReceivedEvent is published after a deposit commits.
type DepositReceivedEvent struct {
	EventID   uuid.UUID       `json:"event_id"`
	AccountID int64           `json:"account_id"`
	EntryID   int64           `json:"entry_id"`
	Amount    decimal.Decimal `json:"amount"`
	Balance   decimal.Decimal `json:"balance"`
}

// storageFailure wraps infrastructure errors as retryable transaction
// failures and passes business outcomes through.
func storageFailure(err error) error {
	if err == nil || domain.IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrTransactionFailed, err)
}
