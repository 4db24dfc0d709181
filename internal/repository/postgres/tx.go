package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/logger"
)

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) LockAccount(ctx context.Context, id int64) (*domain.Account, error) {
	logger.DatabaseCall("SELECT FOR UPDATE", "accounts", "accountID", id)
	a, err := scanAccount(t.tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	return a, err
}

func (t *txStore) UpdateAccountBalance(ctx context.Context, id int64, balance decimal.Decimal, expectedVersion int64) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		balance, time.Now(), id, expectedVersion)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err, "table", "accounts", "accountID", id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: account %d", domain.ErrConcurrentModification, id)
	}
	return nil
}

func (t *txStore) FreezeAccount(ctx context.Context, id int64, reason string) error {
	return setFrozen(ctx, t.tx, id, true, reason)
}

func (t *txStore) LockLead(ctx context.Context, id int64) (*domain.Lead, error) {
	logger.DatabaseCall("SELECT FOR UPDATE", "leads", "leadID", id)
	l, err := scanLead(t.tx.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLeadNotFound
	}
	return l, err
}

func (t *txStore) TransitionLeadStatus(ctx context.Context, id int64, from, to domain.LeadStatus, expectedVersion int64) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	now := time.Now()
	var soldAt *time.Time
	if to == domain.LeadStatusSold {
		soldAt = &now
	}

	result, err := t.tx.ExecContext(ctx, `
		UPDATE leads
		SET status = $1, version = version + 1, updated_at = $2, sold_at = COALESCE($3, sold_at)
		WHERE id = $4 AND status = $5 AND version = $6`,
		to, now, soldAt, id, from, expectedVersion)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err, "table", "leads", "leadID", id, "to", to)
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrLeadUnavailable
	}
	return nil
}

func (t *txStore) CreatePurchase(ctx context.Context, p *domain.Purchase) error {
	if p.Status == "" {
		p.Status = domain.PurchaseStatusCompleted
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO purchases (account_id, lead_id, price, status, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		p.AccountID, p.LeadID, p.Price, p.Status, p.CreatedAt).Scan(&p.ID)
	if isUniqueViolation(err, "idx_purchases_lead") {
		return domain.ErrLeadUnavailable
	}
	return err
}

func (t *txStore) LockPurchase(ctx context.Context, id int64) (*domain.Purchase, error) {
	p, err := scanPurchase(t.tx.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPurchaseNotFound
	}
	return p, err
}

func (t *txStore) MarkPurchaseRefunded(ctx context.Context, id int64, at time.Time) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE purchases SET status = $1, refunded_at = $2
		WHERE id = $3 AND status = $4`,
		domain.PurchaseStatusRefunded, at, id, domain.PurchaseStatusCompleted)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrAlreadyRefunded
	}
	return nil
}

func (t *txStore) AppendLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	logger.DatabaseCall("INSERT", "ledger_entries", "accountID", e.AccountID, "kind", e.Kind)
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO ledger_entries
			(account_id, kind, amount, description, balance_before, balance_after, external_ref, payment_method, purchase_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		e.AccountID, e.Kind, e.Amount, e.Description, e.BalanceBefore, e.BalanceAfter,
		e.ExternalRef, nullString(string(e.PaymentMethod)), e.PurchaseID, e.CreatedAt).Scan(&e.ID)
	logger.DatabaseResult("INSERT", 1, err, "table", "ledger_entries", "entryID", e.ID)
	if isUniqueViolation(err, "ledger_entries_external_ref_key") {
		return domain.ErrDuplicateDeposit
	}
	if isUniqueViolation(err, "idx_ledger_entries_refund") {
		return domain.ErrAlreadyRefunded
	}
	return err
}

func (t *txStore) ListLedgerEntries(ctx context.Context, accountID int64) ([]domain.LedgerEntry, error) {
	return listLedgerEntries(ctx, t.tx, accountID)
}

func (t *txStore) FindDepositByExternalRef(ctx context.Context, ref string) (*domain.LedgerEntry, error) {
	e, err := scanLedgerEntry(t.tx.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE external_ref = $1 AND kind = $2`,
		ref, domain.LedgerEntryKindDeposit))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}
