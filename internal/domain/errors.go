package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrLeadUnavailable        = errors.New("lead unavailable")
	ErrLeadNotFound           = errors.New("lead not found")
	ErrLeadSold               = errors.New("lead already sold")
	ErrInvalidTransition      = errors.New("invalid lead status transition")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountFrozen          = errors.New("account frozen pending ledger investigation")
	ErrEmailTaken             = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrDuplicateDeposit       = errors.New("duplicate deposit")
	ErrExternalRefConflict    = errors.New("external payment reference already used by a different deposit")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidInput           = errors.New("invalid input")
	ErrTransactionFailed      = errors.New("transaction failed")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrPurchaseNotFound       = errors.New("purchase not found")
	ErrAlreadyRefunded        = errors.New("purchase already refunded")
	ErrNotificationNotFound   = errors.New("notification not found")
	ErrLedgerMismatch         = errors.New("ledger replay does not match cached balance")
)

type InsufficientFundsError struct {
	AccountID int64
	Balance   decimal.Decimal
	Price     decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: account %d has %s, needs %s", e.AccountID, e.Balance, e.Price)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

type LedgerMismatchError struct {
	AccountID int64
	Cached    decimal.Decimal
	Replayed  decimal.Decimal
	Detail    string
}

func (e *LedgerMismatchError) Error() string {
	msg := fmt.Sprintf("ledger mismatch on account %d: cached %s, replayed %s", e.AccountID, e.Cached, e.Replayed)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *LedgerMismatchError) Unwrap() error {
	return ErrLedgerMismatch
}

// IsRetryable reports whether the caller may safely retry the operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionFailed) || errors.Is(err, ErrConcurrentModification)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrLeadNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrPurchaseNotFound) ||
		errors.Is(err, ErrNotificationNotFound)
}

// IsDomainError reports whether err is an expected business outcome as opposed
// to an infrastructure failure.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrLeadUnavailable, ErrLeadNotFound, ErrLeadSold, ErrInvalidTransition,
		ErrInsufficientFunds, ErrAccountNotFound, ErrAccountFrozen, ErrEmailTaken,
		ErrInvalidCredentials, ErrDuplicateDeposit, ErrExternalRefConflict, ErrInvalidAmount, ErrInvalidInput,
		ErrPurchaseNotFound, ErrAlreadyRefunded, ErrNotificationNotFound, ErrLedgerMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
