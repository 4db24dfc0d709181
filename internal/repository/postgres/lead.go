package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/logger"
	"leadmarket-backend/internal/repository"
)

type leadRepository struct {
	db *sql.DB
}

func NewLeadRepository(db *sql.DB) repository.LeadRepository {
	return &leadRepository{db: db}
}

func (r *leadRepository) Create(ctx context.Context, l *domain.Lead) error {
	now := time.Now()
	if l.Status == "" {
		l.Status = domain.LeadStatusAvailable
	}
	l.Version = 0
	l.CreatedAt = now
	l.UpdatedAt = now

	query := `INSERT INTO leads (name, email, phone, company, category, region, notes, quality_score, price, status, version, expires_at, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`
	logger.DatabaseCall("INSERT", "leads", "category", l.Category, "region", l.Region)
	err := r.db.QueryRowContext(ctx, query,
		l.Name, nullString(l.Email), nullString(l.Phone), nullString(l.Company), l.Category, l.Region,
		nullString(l.Notes), l.QualityScore, l.Price, l.Status, l.Version, l.ExpiresAt, l.CreatedAt, l.UpdatedAt,
	).Scan(&l.ID)
	logger.DatabaseResult("INSERT", 1, err, "leadID", l.ID)
	return err
}

func (r *leadRepository) GetByID(ctx context.Context, id int64) (*domain.Lead, error) {
	l, err := scanLead(r.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLeadNotFound
	}
	return l, err
}

func (r *leadRepository) ListAvailable(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, int32, error) {
	filter.Normalize()

	where := []string{"status = 'available'"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.Region != "" {
		add("region = $%d", filter.Region)
	}
	if filter.MinPrice != nil {
		add("price >= $%d", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		add("price <= $%d", *filter.MaxPrice)
	}
	if filter.MinQuality > 0 {
		add("quality_score >= $%d", filter.MinQuality)
	}
	clause := strings.Join(where, " AND ")

	var count int32
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM leads WHERE `+clause, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM leads WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
		leadColumns, clause, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.PageSize, filter.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var leads []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, 0, err
		}
		leads = append(leads, *l)
	}
	return leads, count, rows.Err()
}

// UpdateDetails never writes status. A price change on a sold lead matches no
// row, and the follow-up read tells a missing lead apart from a sold one.
func (r *leadRepository) UpdateDetails(ctx context.Context, id int64, d domain.LeadDetails) (*domain.Lead, error) {
	if d.Price != nil && !d.Price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", domain.ErrInvalidAmount)
	}

	query := `UPDATE leads SET
	            name = COALESCE($1, name),
	            email = COALESCE($2, email),
	            phone = COALESCE($3, phone),
	            company = COALESCE($4, company),
	            category = COALESCE($5, category),
	            region = COALESCE($6, region),
	            notes = COALESCE($7, notes),
	            quality_score = COALESCE($8, quality_score),
	            price = COALESCE($9::numeric, price),
	            version = version + 1,
	            updated_at = $10
	          WHERE id = $11 AND ($9::numeric IS NULL OR status <> 'sold')
	          RETURNING ` + leadColumns
	logger.DatabaseCall("UPDATE", "leads", "leadID", id)
	l, err := scanLead(r.db.QueryRowContext(ctx, query,
		d.Name, d.Email, d.Phone, d.Company, d.Category, d.Region, d.Notes, d.QualityScore, d.Price,
		time.Now(), id))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrLeadSold
	}
	return l, err
}

func (r *leadRepository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE leads SET status = 'expired', version = version + 1, updated_at = $1
	          WHERE status = 'available' AND expires_at IS NOT NULL AND expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err, "table", "leads", "op", "expire")
	return rows, err
}
