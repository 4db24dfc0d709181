package postgres

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/logger"
	"leadmarket-backend/internal/repository"
)

type ledgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) repository.LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) ListByAccount(ctx context.Context, accountID int64) ([]domain.LedgerEntry, error) {
	return listLedgerEntries(ctx, r.db, accountID)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listLedgerEntries(ctx context.Context, q queryer, accountID int64) ([]domain.LedgerEntry, error) {
	logger.DatabaseCall("SELECT", "ledger_entries", "accountID", accountID)
	rows, err := q.QueryContext(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE account_id = $1 ORDER BY id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (r *ledgerRepository) SumByAccount(ctx context.Context, accountID int64) (decimal.Decimal, int, error) {
	var (
		sum decimal.Decimal
		n   int
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0), count(*) FROM ledger_entries WHERE account_id = $1`, accountID,
	).Scan(&sum, &n)
	return sum, n, err
}
