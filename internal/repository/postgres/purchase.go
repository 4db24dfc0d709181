package postgres

import (
	"context"
	"database/sql"
	"errors"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/repository"
)

type purchaseRepository struct {
	db *sql.DB
}

func NewPurchaseRepository(db *sql.DB) repository.PurchaseRepository {
	return &purchaseRepository{db: db}
}

func (r *purchaseRepository) GetByID(ctx context.Context, id int64) (*domain.Purchase, error) {
	p, err := scanPurchase(r.db.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPurchaseNotFound
	}
	return p, err
}

func (r *purchaseRepository) ListByAccount(ctx context.Context, accountID int64, page, pageSize int32) ([]domain.Purchase, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = domain.DefaultPageSize
	}

	var count int32
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM purchases WHERE account_id = $1`, accountID).Scan(&count); err != nil {
		return nil, 0, err
	}

	query := `SELECT p.id, p.account_id, p.lead_id, p.price, p.status, p.created_at, p.refunded_at,
	                 l.name, COALESCE(l.email, ''), COALESCE(l.phone, ''), COALESCE(l.company, ''), l.category, l.region
	          FROM purchases p
	          JOIN leads l ON l.id = p.lead_id
	          WHERE p.account_id = $1
	          ORDER BY p.id DESC
	          LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, accountID, pageSize, domain.PageOffset(page, pageSize))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []domain.Purchase
	for rows.Next() {
		var (
			p          domain.Purchase
			l          domain.Lead
			refundedAt sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.AccountID, &p.LeadID, &p.Price, &p.Status, &p.CreatedAt, &refundedAt,
			&l.Name, &l.Email, &l.Phone, &l.Company, &l.Category, &l.Region); err != nil {
			return nil, 0, err
		}
		if refundedAt.Valid {
			p.RefundedAt = &refundedAt.Time
		}
		l.ID = p.LeadID
		l.Status = domain.LeadStatusSold
		p.Lead = &l
		out = append(out, p)
	}
	return out, count, rows.Err()
}

func (r *purchaseRepository) CountByLead(ctx context.Context, leadID int64) (int32, error) {
	var n int32
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM purchases WHERE lead_id = $1`, leadID).Scan(&n)
	return n, err
}
