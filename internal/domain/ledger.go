package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type LedgerEntryKind string

const (
	LedgerEntryKindDeposit  LedgerEntryKind = "deposit"
	LedgerEntryKindPurchase LedgerEntryKind = "purchase"
	LedgerEntryKindRefund   LedgerEntryKind = "refund"
)

type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodPix    PaymentMethod = "pix"
	PaymentMethodManual PaymentMethod = "manual"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodPix, PaymentMethodManual:
		return true
	}
	return false
}

// LedgerEntry is an immutable balance change. Entries are never updated or
// deleted; replaying them in ID order yields the account balance.
type LedgerEntry struct {
	ID            int64           `json:"id"`
	AccountID     int64           `json:"account_id"`
	Kind          LedgerEntryKind `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	ExternalRef   *string         `json:"external_ref,omitempty"`
	PaymentMethod PaymentMethod   `json:"payment_method,omitempty"`
	PurchaseID    *int64          `json:"purchase_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CheckAmountSign enforces positive credits and negative debits per kind.
func (k LedgerEntryKind) CheckAmountSign(amount decimal.Decimal) error {
	switch k {
	case LedgerEntryKindDeposit, LedgerEntryKindRefund:
		if !amount.IsPositive() {
			return fmt.Errorf("%w: %s amount must be positive, got %s", ErrInvalidAmount, k, amount)
		}
	case LedgerEntryKindPurchase:
		if !amount.IsNegative() {
			return fmt.Errorf("%w: purchase amount must be negative, got %s", ErrInvalidAmount, amount)
		}
	default:
		return fmt.Errorf("%w: unknown ledger entry kind %q", ErrInvalidAmount, k)
	}
	return nil
}

// Replay sums entries in order and checks each before/after snapshot chains
// onto the previous one. It returns the replayed balance.
func Replay(entries []LedgerEntry) (decimal.Decimal, error) {
	balance := decimal.Zero
	for i, e := range entries {
		if !e.BalanceBefore.Equal(balance) {
			return balance, fmt.Errorf("entry %d (index %d): balance_before %s does not follow %s", e.ID, i, e.BalanceBefore, balance)
		}
		balance = balance.Add(e.Amount)
		if !e.BalanceAfter.Equal(balance) {
			return balance, fmt.Errorf("entry %d (index %d): balance_after %s, replay gives %s", e.ID, i, e.BalanceAfter, balance)
		}
	}
	return balance, nil
}

// ReconciliationResult compares an account's cached balance with its ledger.
type ReconciliationResult struct {
	AccountID int64           `json:"account_id"`
	Cached    decimal.Decimal `json:"cached"`
	Replayed  decimal.Decimal `json:"replayed"`
	Entries   int             `json:"entries"`
	Matches   bool            `json:"matches"`
	Detail    string          `json:"detail,omitempty"`
}

type ReconciliationReport struct {
	Checked    int                    `json:"checked"`
	Mismatched []ReconciliationResult `json:"mismatched"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}
