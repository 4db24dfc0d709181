package postgres

import (
	"database/sql"

	"leadmarket-backend/internal/domain"
)

const accountColumns = `id, email, name, password_hash, role, balance, version, frozen, COALESCE(frozen_reason, ''), created_at, updated_at`

func scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Role, &a.Balance, &a.Version, &a.Frozen, &a.FrozenReason, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const leadColumns = `id, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(company, ''), category, region,
	COALESCE(notes, ''), quality_score, price, status, version, expires_at, sold_at, created_at, updated_at`

func scanLead(row rowScanner) (*domain.Lead, error) {
	var (
		l         domain.Lead
		expiresAt sql.NullTime
		soldAt    sql.NullTime
	)
	err := row.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.Company, &l.Category, &l.Region,
		&l.Notes, &l.QualityScore, &l.Price, &l.Status, &l.Version, &expiresAt, &soldAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		l.ExpiresAt = &expiresAt.Time
	}
	if soldAt.Valid {
		l.SoldAt = &soldAt.Time
	}
	return &l, nil
}

const purchaseColumns = `id, account_id, lead_id, price, status, created_at, refunded_at`

func scanPurchase(row rowScanner) (*domain.Purchase, error) {
	var (
		p          domain.Purchase
		refundedAt sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.AccountID, &p.LeadID, &p.Price, &p.Status, &p.CreatedAt, &refundedAt); err != nil {
		return nil, err
	}
	if refundedAt.Valid {
		p.RefundedAt = &refundedAt.Time
	}
	return &p, nil
}

const ledgerColumns = `id, account_id, kind, amount, description, balance_before, balance_after,
	external_ref, COALESCE(payment_method, ''), purchase_id, created_at`

func scanLedgerEntry(row rowScanner) (*domain.LedgerEntry, error) {
	var (
		e           domain.LedgerEntry
		externalRef sql.NullString
		purchaseID  sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.AccountID, &e.Kind, &e.Amount, &e.Description, &e.BalanceBefore, &e.BalanceAfter,
		&externalRef, &e.PaymentMethod, &purchaseID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if externalRef.Valid {
		e.ExternalRef = &externalRef.String
	}
	if purchaseID.Valid {
		e.PurchaseID = &purchaseID.Int64
	}
	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
