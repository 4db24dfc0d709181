package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadmarket-backend/internal/cache"
	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/logger"
	"leadmarket-backend/internal/metrics"
	"leadmarket-backend/internal/repository"
)

type purchaseService struct {
	tx           repository.Transactor
	purchaseRepo repository.PurchaseRepository
	accountRepo  repository.AccountRepository
	ledgerSvc    LedgerService
	publisher    EventPublisher
	cache        *cache.Cache
	metrics      *metrics.Metrics
}

func NewPurchaseService(
	tx repository.Transactor,
	purchaseRepo repository.PurchaseRepository,
	accountRepo repository.AccountRepository,
	ledgerSvc LedgerService,
	publisher EventPublisher,
	c *cache.Cache,
	m *metrics.Metrics,
) PurchaseService {
	if m == nil {
		m = metrics.NewNop()
	}
	return &purchaseService{
		tx:           tx,
		purchaseRepo: purchaseRepo,
		accountRepo:  accountRepo,
		ledgerSvc:    ledgerSvc,
		publisher:    publisher,
		cache:        c,
		metrics:      m,
	}
}

// Purchase sells an available lead to the account. Lead availability is
// checked before the account, and the account before its funds. Lead row then
// account row is the lock order.
func (s *purchaseService) Purchase(ctx context.Context, accountID, leadID int64) (*domain.Purchase, error) {
	logger.EnterMethod("purchaseService.Purchase", "accountID", accountID, "leadID", leadID)
	start := time.Now()

	var purchase *domain.Purchase
	var lead *domain.Lead
	err := s.tx.WithTx(ctx, func(tx repository.TxStore) error {
		var err error
		lead, err = tx.LockLead(ctx, leadID)
		if errors.Is(err, domain.ErrLeadNotFound) {
			return fmt.Errorf("%w: %w", domain.ErrLeadUnavailable, err)
		}
		if err != nil {
			return err
		}
		if !lead.IsPurchasable() {
			return fmt.Errorf("%w: lead %d is %s", domain.ErrLeadUnavailable, lead.ID, lead.Status)
		}

		account, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if account.Frozen {
			return fmt.Errorf("%w: account %d", domain.ErrAccountFrozen, account.ID)
		}
		if !account.CanAfford(lead.Price) {
			return &domain.InsufficientFundsError{AccountID: account.ID, Balance: account.Balance, Price: lead.Price}
		}

		if err := tx.TransitionLeadStatus(ctx, lead.ID, domain.LeadStatusAvailable, domain.LeadStatusSold, lead.Version); err != nil {
			return err
		}

		purchase = &domain.Purchase{
			AccountID: account.ID,
			LeadID:    lead.ID,
			Price:     lead.Price,
			Status:    domain.PurchaseStatusCompleted,
		}
		if err := tx.CreatePurchase(ctx, purchase); err != nil {
			return err
		}

		_, err = s.ledgerSvc.Append(ctx, tx, AppendRequest{
			AccountID:   account.ID,
			Kind:        domain.LedgerEntryKindPurchase,
			Amount:      lead.Price.Neg(),
			Description: fmt.Sprintf("Purchase of lead #%d (%s)", lead.ID, lead.Name),
			PurchaseID:  &purchase.ID,
		})
		return err
	})
	s.metrics.PurchaseDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		err = storageFailure(err)
		s.metrics.Purchases.WithLabelValues(purchaseOutcome(err)).Inc()
		logger.ExitMethodWithError("purchaseService.Purchase", err, "accountID", accountID, "leadID", leadID)
		return nil, err
	}

	s.metrics.Purchases.WithLabelValues("success").Inc()
	s.cache.InvalidateLeads(ctx)
	s.cache.InvalidateBalance(ctx, accountID)

	sold := *lead
	sold.Status = domain.LeadStatusSold
	purchase.Lead = &sold

	event := domain.NewPurchaseCompletedEvent(purchase)
	if err := s.publisher.Publish(ctx, domain.DispatchKindPurchaseCompleted, event.EventID, event); err != nil {
		logger.Error("Failed to publish purchase event", "purchaseID", purchase.ID, "eventID", event.EventID, "error", err)
	}

	logger.ExitMethod("purchaseService.Purchase", "purchaseID", purchase.ID, "price", purchase.Price.String())
	return purchase, nil
}

func (s *purchaseService) GetPurchaseHistory(ctx context.Context, accountID int64, page, pageSize int32) ([]domain.Purchase, int32, error) {
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > domain.MaxPageSize {
		pageSize = domain.DefaultPageSize
	}
	return s.purchaseRepo.ListByAccount(ctx, accountID, page, pageSize)
}

// Refund credits the purchase price back to the buyer. The lead stays sold.
func (s *purchaseService) Refund(ctx context.Context, purchaseID int64, reason string) (*domain.LedgerEntry, error) {
	logger.EnterMethod("purchaseService.Refund", "purchaseID", purchaseID)

	var entry *domain.LedgerEntry
	var purchase *domain.Purchase
	err := s.tx.WithTx(ctx, func(tx repository.TxStore) error {
		var err error
		purchase, err = tx.LockPurchase(ctx, purchaseID)
		if err != nil {
			return err
		}
		if purchase.Status == domain.PurchaseStatusRefunded {
			return domain.ErrAlreadyRefunded
		}
		if err := tx.MarkPurchaseRefunded(ctx, purchase.ID, time.Now()); err != nil {
			return err
		}

		description := fmt.Sprintf("Refund of purchase #%d", purchase.ID)
		if reason != "" {
			description += ": " + reason
		}
		entry, err = s.ledgerSvc.Append(ctx, tx, AppendRequest{
			AccountID:   purchase.AccountID,
			Kind:        domain.LedgerEntryKindRefund,
			Amount:      purchase.Price,
			Description: description,
			PurchaseID:  &purchase.ID,
		})
		return err
	})
	if err != nil {
		err = storageFailure(err)
		logger.ExitMethodWithError("purchaseService.Refund", err, "purchaseID", purchaseID)
		return nil, err
	}

	s.metrics.Refunds.Inc()
	s.cache.InvalidateBalance(ctx, purchase.AccountID)
	logger.ExitMethod("purchaseService.Refund", "purchaseID", purchaseID, "entryID", entry.ID)
	return entry, nil
}

func purchaseOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrLeadUnavailable):
		return "lead_unavailable"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, domain.ErrAccountFrozen):
		return "account_frozen"
	default:
		return "transaction_failed"
	}
}
