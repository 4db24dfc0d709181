package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"leadmarket-backend/internal/cache"
	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/logger"
	"leadmarket-backend/internal/metrics"
	"leadmarket-backend/internal/repository"
)

type depositService struct {
	tx        repository.Transactor
	ledgerSvc LedgerService
	publisher EventPublisher
	cache     *cache.Cache
	metrics   *metrics.Metrics
}

func NewDepositService(
	tx repository.Transactor,
	ledgerSvc LedgerService,
	publisher EventPublisher,
	c *cache.Cache,
	m *metrics.Metrics,
) DepositService {
	if m == nil {
		m = metrics.NewNop()
	}
	return &depositService{
		tx:        tx,
		ledgerSvc: ledgerSvc,
		publisher: publisher,
		cache:     c,
		metrics:   m,
	}
}

func (s *depositService) Credit(ctx context.Context, req CreditRequest) (*domain.LedgerEntry, error) {
	logger.EnterMethod("depositService.Credit", "accountID", req.AccountID, "externalRef", req.ExternalRef, "method", req.Method)

	ref := strings.TrimSpace(req.ExternalRef)
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: deposit amount must be positive, got %s", domain.ErrInvalidAmount, req.Amount)
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, fmt.Errorf("%w: deposit amount %s has more than two decimal places", domain.ErrInvalidAmount, req.Amount)
	}
	if !req.Method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", domain.ErrInvalidInput, req.Method)
	}
	if ref == "" {
		return nil, fmt.Errorf("%w: external payment reference is required", domain.ErrInvalidInput)
	}

	var entry, existing *domain.LedgerEntry
	err := s.tx.WithTx(ctx, func(tx repository.TxStore) error {
		var err error
		existing, err = tx.FindDepositByExternalRef(ctx, ref)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateDeposit
		}

		entry, err = s.ledgerSvc.Append(ctx, tx, AppendRequest{
			AccountID:     req.AccountID,
			Kind:          domain.LedgerEntryKindDeposit,
			Amount:        req.Amount,
			Description:   fmt.Sprintf("Deposit via %s", req.Method),
			ExternalRef:   &ref,
			PaymentMethod: req.Method,
		})
		return err
	})

	if errors.Is(err, domain.ErrDuplicateDeposit) {
		if existing == nil {
			// Lost the race on the unique constraint; read the winner.
			existing = s.findByRef(ctx, ref)
		}
		if existing == nil || existing.AccountID != req.AccountID || !existing.Amount.Equal(req.Amount) {
			s.metrics.Deposits.WithLabelValues("conflict").Inc()
			logger.Warn("External ref reused for a different deposit", "externalRef", ref, "accountID", req.AccountID)
			return nil, fmt.Errorf("%w: %q", domain.ErrExternalRefConflict, ref)
		}
		s.metrics.Deposits.WithLabelValues("duplicate").Inc()
		logger.Info("Duplicate deposit ignored", "externalRef", ref, "accountID", req.AccountID)
		return existing, domain.ErrDuplicateDeposit
	}
	if err != nil {
		err = storageFailure(err)
		s.metrics.Deposits.WithLabelValues("failed").Inc()
		logger.ExitMethodWithError("depositService.Credit", err, "accountID", req.AccountID, "externalRef", ref)
		return nil, err
	}

	s.metrics.Deposits.WithLabelValues("success").Inc()
	s.cache.InvalidateBalance(ctx, req.AccountID)

	event := DepositReceivedEvent{
		EventID:   uuid.New(),
		AccountID: entry.AccountID,
		EntryID:   entry.ID,
		Amount:    entry.Amount,
		Balance:   entry.BalanceAfter,
	}
	if err := s.publisher.Publish(ctx, domain.DispatchKindDepositReceived, event.EventID, event); err != nil {
		logger.Error("Failed to publish deposit event", "entryID", entry.ID, "error", err)
	}

	logger.ExitMethod("depositService.Credit", "entryID", entry.ID, "balanceAfter", entry.BalanceAfter.String())
	return entry, nil
}

func (s *depositService) findByRef(ctx context.Context, ref string) *domain.LedgerEntry {
	var found *domain.LedgerEntry
	err := s.tx.WithTx(ctx, func(tx repository.TxStore) error {
		var err error
		found, err = tx.FindDepositByExternalRef(ctx, ref)
		return err
	})
	if err != nil {
		logger.Warn("Failed to load existing deposit", "externalRef", ref, "error", err)
	}
	return found
}
