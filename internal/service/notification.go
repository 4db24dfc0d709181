package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/repository"
)

type notificationService struct {
	noteRepo    repository.NotificationRepository
	accountRepo repository.AccountRepository
	leadRepo    repository.LeadRepository
	emailSvc    EmailService
}

func NewNotificationService(
	noteRepo repository.NotificationRepository,
	accountRepo repository.AccountRepository,
	leadRepo repository.LeadRepository,
	emailSvc EmailService,
) NotificationService {
	return &notificationService{
		noteRepo:    noteRepo,
		accountRepo: accountRepo,
		leadRepo:    leadRepo,
		emailSvc:    emailSvc,
	}
}

func (s *notificationService) GetNotifications(ctx context.Context, accountID int64, page, pageSize int32) ([]domain.Notification, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > domain.MaxPageSize {
		pageSize = domain.DefaultPageSize
	}
	return s.noteRepo.List(ctx, accountID, pageSize, domain.PageOffset(page, pageSize))
}

func (s *notificationService) MarkAsRead(ctx context.Context, accountID, notificationID int64) error {
	return s.noteRepo.MarkAsRead(ctx, notificationID, accountID)
}

// Deliver sends the receipt email, then records the in-app notification.
// Delivery is at-least-once: a retry after a partial failure may resend the
// email.
func (s *notificationService) Deliver(ctx context.Context, rec domain.DispatchRecord) error {
	switch rec.Kind {
	case domain.DispatchKindPurchaseCompleted:
		var event domain.PurchaseCompletedEvent
		if err := json.Unmarshal(rec.Payload, &event); err != nil {
			return fmt.Errorf("failed to decode purchase event %s: %w", rec.EventID, err)
		}
		return s.deliverPurchase(ctx, event)
	case domain.DispatchKindDepositReceived:
		var event DepositReceivedEvent
		if err := json.Unmarshal(rec.Payload, &event); err != nil {
			return fmt.Errorf("failed to decode deposit event %s: %w", rec.EventID, err)
		}
		return s.deliverDeposit(ctx, event)
	default:
		return fmt.Errorf("unknown dispatch kind %q", rec.Kind)
	}
}

func (s *notificationService) deliverPurchase(ctx context.Context, event domain.PurchaseCompletedEvent) error {
	account, err := s.accountRepo.GetByID(ctx, event.AccountID)
	if err != nil {
		return err
	}
	lead, err := s.leadRepo.GetByID(ctx, event.LeadID)
	if err != nil {
		return err
	}

	if err := s.emailSvc.SendPurchaseReceipt(ctx, account.Email, account.Name, lead, event.Price); err != nil {
		return err
	}

	return s.noteRepo.Create(ctx, &domain.Notification{
		AccountID: account.ID,
		Title:     "Lead purchased",
		Message:   fmt.Sprintf("You bought %s for %s credits", lead.Name, event.Price.StringFixed(2)),
		Attributes: map[string]string{
			"type":        "PURCHASE_COMPLETED",
			"purchase_id": strconv.FormatInt(event.PurchaseID, 10),
			"lead_id":     strconv.FormatInt(event.LeadID, 10),
		},
	})
}

func (s *notificationService) deliverDeposit(ctx context.Context, event DepositReceivedEvent) error {
	account, err := s.accountRepo.GetByID(ctx, event.AccountID)
	if err != nil {
		return err
	}

	if err := s.emailSvc.SendDepositReceipt(ctx, account.Email, account.Name, event.Amount, event.Balance); err != nil {
		return err
	}

	return s.noteRepo.Create(ctx, &domain.Notification{
		AccountID: account.ID,
		Title:     "Credits added",
		Message:   fmt.Sprintf("%s credits were added to your balance", event.Amount.StringFixed(2)),
		Attributes: map[string]string{
			"type":     "DEPOSIT_RECEIVED",
			"entry_id": strconv.FormatInt(event.EntryID, 10),
		},
	})
}
