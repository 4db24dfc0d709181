package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PurchaseStatus string

const (
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusRefunded  PurchaseStatus = "refunded"
)

// Purchase records one account acquiring one lead. Price is copied from the
// lead at the moment of sale.
type Purchase struct {
	ID         int64           `json:"id"`
	AccountID  int64           `json:"account_id"`
	LeadID     int64           `json:"lead_id"`
	Price      decimal.Decimal `json:"price"`
	Status     PurchaseStatus  `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	RefundedAt *time.Time      `json:"refunded_at,omitempty"`
	Lead       *Lead           `json:"lead,omitempty"`
}

type PurchaseCompletedEvent struct {
	EventID    uuid.UUID       `json:"event_id"`
	AccountID  int64           `json:"account_id"`
	LeadID     int64           `json:"lead_id"`
	PurchaseID int64           `json:"purchase_id"`
	Price      decimal.Decimal `json:"price"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func NewPurchaseCompletedEvent(p *Purchase) PurchaseCompletedEvent {
	return PurchaseCompletedEvent{
		EventID:    uuid.New(),
		AccountID:  p.AccountID,
		LeadID:     p.LeadID,
		PurchaseID: p.ID,
		Price:      p.Price,
		OccurredAt: p.CreatedAt,
	}
}
