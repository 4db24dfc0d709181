package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"leadmarket-backend/internal/logger"
	"leadmarket-backend/internal/repository"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
	repository.AccountRepository
	repository.LeadRepository
	repository.PurchaseRepository
	repository.LedgerRepository
	repository.NotificationRepository
	repository.DispatchRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                     db,
		AccountRepository:      NewAccountRepository(db),
		LeadRepository:         NewLeadRepository(db),
		PurchaseRepository:     NewPurchaseRepository(db),
		LedgerRepository:       NewLedgerRepository(db),
		NotificationRepository: NewNotificationRepository(db),
		DispatchRepository:     NewDispatchRepository(db),
	}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	logger.DatabaseCall("MIGRATE", "schema.sql")
	_, err := s.db.ExecContext(ctx, schema)
	logger.DatabaseResult("MIGRATE", 0, err)
	if err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// WithTx runs fn in a READ COMMITTED transaction. Rows that decide a purchase
// or deposit are taken with SELECT ... FOR UPDATE inside fn.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.TxStore) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

type rowScanner interface {
	Scan(dest ...any) error
}
