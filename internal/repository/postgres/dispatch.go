package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/logger"
	"leadmarket-backend/internal/repository"
)

type dispatchRepository struct {
	db *sql.DB
}

func NewDispatchRepository(db *sql.DB) repository.DispatchRepository {
	return &dispatchRepository{db: db}
}

func (r *dispatchRepository) Save(ctx context.Context, rec *domain.DispatchRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	query := `INSERT INTO notification_dispatches (event_id, kind, payload, attempts, last_error, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          ON CONFLICT (event_id) DO UPDATE
	          SET attempts = EXCLUDED.attempts, last_error = EXCLUDED.last_error`
	logger.DatabaseCall("UPSERT", "notification_dispatches", "eventID", rec.EventID, "kind", rec.Kind)
	_, err := r.db.ExecContext(ctx, query, rec.EventID, rec.Kind, string(rec.Payload), rec.Attempts, rec.LastError, rec.CreatedAt)
	logger.DatabaseResult("UPSERT", 1, err, "eventID", rec.EventID)
	return err
}

func (r *dispatchRepository) ListPending(ctx context.Context, limit int32) ([]domain.DispatchRecord, error) {
	query := `SELECT event_id, kind, payload, attempts, last_error, created_at
	          FROM notification_dispatches
	          WHERE delivered_at IS NULL
	          ORDER BY created_at
	          LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DispatchRecord
	for rows.Next() {
		var rec domain.DispatchRecord
		if err := rows.Scan(&rec.EventID, &rec.Kind, &rec.Payload, &rec.Attempts, &rec.LastError, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *dispatchRepository) MarkDelivered(ctx context.Context, eventID uuid.UUID) error {
	return r.exec(ctx, eventID, `UPDATE notification_dispatches SET delivered_at = $1 WHERE event_id = $2`, time.Now(), eventID)
}

func (r *dispatchRepository) RecordFailure(ctx context.Context, eventID uuid.UUID, lastErr string) error {
	return r.exec(ctx, eventID, `UPDATE notification_dispatches SET attempts = attempts + 1, last_error = $1 WHERE event_id = $2`, lastErr, eventID)
}

func (r *dispatchRepository) exec(ctx context.Context, eventID uuid.UUID, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("dispatch %s not found", eventID)
	}
	return nil
}
