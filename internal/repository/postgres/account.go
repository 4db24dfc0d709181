package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/logger"
	"leadmarket-backend/internal/repository"
)

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) repository.AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, a *domain.Account) error {
	now := time.Now()
	a.Balance = decimal.Zero
	a.Version = 0
	a.CreatedAt = now
	a.UpdatedAt = now

	query := `INSERT INTO accounts (email, name, password_hash, role, balance, version, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	logger.DatabaseCall("INSERT", "accounts", "email", a.Email)
	err := r.db.QueryRowContext(ctx, query, a.Email, a.Name, a.PasswordHash, a.Role, a.Balance, a.Version, a.CreatedAt, a.UpdatedAt).Scan(&a.ID)
	logger.DatabaseResult("INSERT", 1, err, "accountID", a.ID)
	if isUniqueViolation(err, "") {
		return domain.ErrEmailTaken
	}
	return err
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	return a, err
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = LOWER($1)`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	return a, err
}

func (r *accountRepository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *accountRepository) SetFrozen(ctx context.Context, id int64, frozen bool, reason string) error {
	return setFrozen(ctx, r.db, id, frozen, reason)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setFrozen(ctx context.Context, db execer, id int64, frozen bool, reason string) error {
	query := `UPDATE accounts SET frozen = $1, frozen_reason = $2, updated_at = $3 WHERE id = $4`
	logger.DatabaseCall("UPDATE", "accounts", "accountID", id, "frozen", frozen)
	result, err := db.ExecContext(ctx, query, frozen, nullString(reason), time.Now(), id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err, "accountID", id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}
