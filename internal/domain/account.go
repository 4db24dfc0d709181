package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountRole string

const (
	AccountRoleAdmin  AccountRole = "admin"
	AccountRoleClient AccountRole = "client"
)

// Account is a buyer or administrator. Balance is a cache of the account's
// ledger replay and is only written together with a ledger entry.
type Account struct {
	ID           int64           `json:"id"`
	Email        string          `json:"email"`
	Name         string          `json:"name"`
	PasswordHash string          `json:"-"`
	Role         AccountRole     `json:"role"`
	Balance      decimal.Decimal `json:"balance"`
	Version      int64           `json:"version"`
	Frozen       bool            `json:"frozen"`
	FrozenReason string          `json:"frozen_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (a *Account) IsAdmin() bool {
	return a.Role == AccountRoleAdmin
}

func (a *Account) CanAfford(price decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(price)
}
