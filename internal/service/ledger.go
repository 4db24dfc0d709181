package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"leadmarket-backend/internal/cache"
	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/logger"
	"leadmarket-backend/internal/metrics"
	"leadmarket-backend/internal/repository"
)

type ledgerService struct {
	tx          repository.Transactor
	ledgerRepo  repository.LedgerRepository
	accountRepo repository.AccountRepository
	cache       *cache.Cache
	emailSvc    EmailService
	alertEmail  string
	metrics     *metrics.Metrics
}

func NewLedgerService(
	tx repository.Transactor,
	ledgerRepo repository.LedgerRepository,
	accountRepo repository.AccountRepository,
	c *cache.Cache,
	emailSvc EmailService,
	alertEmail string,
	m *metrics.Metrics,
) LedgerService {
	if m == nil {
		m = metrics.NewNop()
	}
	return &ledgerService{
		tx:          tx,
		ledgerRepo:  ledgerRepo,
		accountRepo: accountRepo,
		cache:       c,
		emailSvc:    emailSvc,
		alertEmail:  alertEmail,
		metrics:     m,
	}
}

func (s *ledgerService) Append(ctx context.Context, tx repository.TxStore, req AppendRequest) (*domain.LedgerEntry, error) {
	if err := req.Kind.CheckAmountSign(req.Amount); err != nil {
		return nil, err
	}

	account, err := tx.LockAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if account.Frozen {
		return nil, fmt.Errorf("%w: account %d", domain.ErrAccountFrozen, account.ID)
	}

	before := account.Balance
	after := before.Add(req.Amount)
	if after.IsNegative() {
		return nil, &domain.InsufficientFundsError{AccountID: account.ID, Balance: before, Price: req.Amount.Neg()}
	}

	entry := &domain.LedgerEntry{
		AccountID:     account.ID,
		Kind:          req.Kind,
		Amount:        req.Amount,
		Description:   req.Description,
		BalanceBefore: before,
		BalanceAfter:  after,
		ExternalRef:   req.ExternalRef,
		PaymentMethod: req.PaymentMethod,
		PurchaseID:    req.PurchaseID,
	}
	if err := tx.AppendLedgerEntry(ctx, entry); err != nil {
		return nil, err
	}
	if err := tx.UpdateAccountBalance(ctx, account.ID, after, account.Version); err != nil {
		return nil, err
	}

	logger.Debug("Ledger entry appended", "accountID", account.ID, "kind", entry.Kind,
		"amount", entry.Amount.String(), "balanceAfter", after.String(), "entryID", entry.ID)
	return entry, nil
}

func (s *ledgerService) GetHistory(ctx context.Context, accountID int64) ([]domain.LedgerEntry, error) {
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.ledgerRepo.ListByAccount(ctx, accountID)
}

func (s *ledgerService) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	if balance, ok := s.cache.GetBalance(ctx, accountID); ok {
		return balance, nil
	}
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	s.cache.SetBalance(ctx, accountID, account.Balance)
	return account.Balance, nil
}

// Reconcile replays the account's ledger and compares it with the cached
// balance. Both are read under the account lock, so a concurrent append can
// never look like drift. A mismatch freezes the account and returns
// *LedgerMismatchError.
func (s *ledgerService) Reconcile(ctx context.Context, accountID int64) (*domain.ReconciliationResult, error) {
	var (
		result    *domain.ReconciliationResult
		mismatch  *domain.LedgerMismatchError
		newFreeze bool
	)
	err := s.tx.WithTx(ctx, func(tx repository.TxStore) error {
		account, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		entries, err := tx.ListLedgerEntries(ctx, accountID)
		if err != nil {
			return err
		}

		replayed, replayErr := domain.Replay(entries)
		result = &domain.ReconciliationResult{
			AccountID: accountID,
			Cached:    account.Balance,
			Replayed:  replayed,
			Entries:   len(entries),
			Matches:   replayErr == nil && replayed.Equal(account.Balance),
		}
		if result.Matches {
			return nil
		}

		if replayErr != nil {
			result.Detail = replayErr.Error()
		}
		mismatch = &domain.LedgerMismatchError{
			AccountID: accountID,
			Cached:    account.Balance,
			Replayed:  replayed,
			Detail:    result.Detail,
		}
		if account.Frozen {
			return nil
		}
		if err := tx.FreezeAccount(ctx, accountID, mismatch.Error()); err != nil {
			return fmt.Errorf("failed to freeze account %d: %w", accountID, err)
		}
		newFreeze = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Reconciliations.Inc()
	if mismatch == nil {
		return result, nil
	}

	s.metrics.LedgerMismatches.Inc()
	logger.LedgerAlert("Ledger replay disagrees with cached balance", accountID,
		"cached", mismatch.Cached.String(), "replayed", mismatch.Replayed.String(), "entries", result.Entries, "detail", result.Detail)

	if newFreeze {
		s.cache.InvalidateBalance(ctx, accountID)
		if s.emailSvc != nil && s.alertEmail != "" {
			if err := s.emailSvc.SendLedgerAlert(ctx, s.alertEmail, mismatch); err != nil {
				logger.WithAccount(accountID).Error("Failed to send ledger alert email", "error", err)
			}
		}
	}
	return result, mismatch
}

func (s *ledgerService) ReconcileAll(ctx context.Context) (*domain.ReconciliationReport, error) {
	report := &domain.ReconciliationReport{StartedAt: time.Now()}

	ids, err := s.accountRepo.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		result, err := s.Reconcile(ctx, id)
		if result == nil {
			return report, fmt.Errorf("failed to reconcile account %d: %w", id, err)
		}
		report.Checked++
		if !result.Matches {
			report.Mismatched = append(report.Mismatched, *result)
		}
	}

	report.FinishedAt = time.Now()
	logger.Info("Ledger reconciliation finished", "checked", report.Checked, "mismatched", len(report.Mismatched),
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}
