package domain

import (
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	ID         int64             `json:"id"`
	AccountID  int64             `json:"account_id"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	IsRead     bool              `json:"is_read"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"created_at"`
}

type DispatchKind string

const (
	DispatchKindPurchaseCompleted DispatchKind = "purchase_completed"
	DispatchKindDepositReceived   DispatchKind = "deposit_received"
)

// DispatchRecord is a notification that could not be delivered in-line and
// waits in the outbox for the retry job.
type DispatchRecord struct {
	EventID     uuid.UUID    `json:"event_id"`
	Kind        DispatchKind `json:"kind"`
	Payload     []byte       `json:"payload"`
	Attempts    int          `json:"attempts"`
	LastError   string       `json:"last_error"`
	CreatedAt   time.Time    `json:"created_at"`
	DeliveredAt *time.Time   `json:"delivered_at,omitempty"`
}
