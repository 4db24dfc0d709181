package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/repository"
)

func TestAppend_RejectsWrongSign(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, "buyer@example.com")

	err := env.store.WithTx(ctx, func(tx repository.TxStore) error {
		_, err := env.ledger.Append(ctx, tx, AppendRequest{AccountID: account.ID, Kind: domain.LedgerEntryKindPurchase, Amount: dec("5")})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestAppend_NeverNegative(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, "buyer@example.com")
	env.fund(t, account.ID, "5.00")

	err := env.store.WithTx(ctx, func(tx repository.TxStore) error {
		_, err := env.ledger.Append(ctx, tx, AppendRequest{AccountID: account.ID, Kind: domain.LedgerEntryKindPurchase, Amount: dec("-5.01")})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.True(t, dec("5.00").Equal(env.balance(t, account.ID)))
}

func TestReconcile_ReplayInvariantHolds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.newAccount(t, "buyer@example.com")
	other := env.newAccount(t, "other@example.com")
	env.fund(t, buyer.ID, "120.00")
	env.fund(t, buyer.ID, "0.55")
	env.fund(t, other.ID, "10.00")

	for _, price := range []string{"33.30", "12.25"} {
		lead := env.newLead(t, price)
		_, err := env.purchases.Purchase(ctx, buyer.ID, lead.ID)
		require.NoError(t, err)
	}

	report, err := env.ledger.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Empty(t, report.Mismatched)

	result, err := env.ledger.Reconcile(ctx, buyer.ID)
	require.NoError(t, err)
	assert.True(t, result.Matches)
	assert.Equal(t, 4, result.Entries)
	assert.True(t, dec("75.00").Equal(result.Replayed))
}

func TestReconcile_MismatchFreezesAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	emailSvc := new(MockEmailService)
	env.ledger = NewLedgerService(env.store, env.store.LedgerRepository, env.store.AccountRepository, nil, emailSvc, "ops@example.com", env.metrics)
	env.purchases = NewPurchaseService(env.store, env.store.PurchaseRepository, env.store.AccountRepository, env.ledger, env.publisher, nil, env.metrics)

	account := env.newAccount(t, "buyer@example.com")
	env.fund(t, account.ID, "50.00")
	lead := env.newLead(t, "10.00")

	// Write the cached balance without a justifying ledger entry.
	err := env.store.WithTx(ctx, func(tx repository.TxStore) error {
		a, err := tx.LockAccount(ctx, account.ID)
		if err != nil {
			return err
		}
		return tx.UpdateAccountBalance(ctx, a.ID, dec("80.00"), a.Version)
	})
	require.NoError(t, err)

	emailSvc.On("SendLedgerAlert", mock.Anything, "ops@example.com", mock.AnythingOfType("*domain.LedgerMismatchError")).Return(nil).Once()

	result, err := env.ledger.Reconcile(ctx, account.ID)
	require.ErrorIs(t, err, domain.ErrLedgerMismatch)
	var mismatch *domain.LedgerMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.True(t, dec("80.00").Equal(mismatch.Cached))
	assert.True(t, dec("50.00").Equal(mismatch.Replayed))
	assert.False(t, result.Matches)

	frozen, err := env.store.AccountRepository.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, frozen.Frozen)

	_, err = env.purchases.Purchase(ctx, account.ID, lead.ID)
	assert.ErrorIs(t, err, domain.ErrAccountFrozen)

	report, err := env.ledger.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, report.Mismatched, 1)
	assert.Equal(t, account.ID, report.Mismatched[0].AccountID)

	emailSvc.AssertExpectations(t)
}

// racingLedgerRepo and racingAccountRepo commit a write on every read made
// outside the reconciliation unit.
type racingLedgerRepo struct {
	repository.LedgerRepository
	before func()
}

func (r *racingLedgerRepo) ListByAccount(ctx context.Context, accountID int64) ([]domain.LedgerEntry, error) {
	r.before()
	return r.LedgerRepository.ListByAccount(ctx, accountID)
}

type racingAccountRepo struct {
	repository.AccountRepository
	before func()
}

func (r *racingAccountRepo) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	r.before()
	return r.AccountRepository.GetByID(ctx, id)
}

func TestReconcile_DepositDuringCheckIsNotDrift(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	emailSvc := new(MockEmailService)
	account := env.newAccount(t, "buyer@example.com")
	env.fund(t, account.ID, "10.00")

	var once sync.Once
	deposit := func() { once.Do(func() { env.fund(t, account.ID, "5.00") }) }
	ledger := NewLedgerService(env.store,
		&racingLedgerRepo{LedgerRepository: env.store.LedgerRepository, before: deposit},
		&racingAccountRepo{AccountRepository: env.store.AccountRepository, before: deposit},
		nil, emailSvc, "ops@example.com", env.metrics)

	result, err := ledger.Reconcile(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, result.Matches)

	deposit()
	result, err = ledger.Reconcile(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, result.Matches)
	assert.True(t, dec("15.00").Equal(result.Replayed))

	stored, err := env.store.AccountRepository.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, stored.Frozen)
	emailSvc.AssertNotCalled(t, "SendLedgerAlert", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_ConcurrentTrafficNeverFreezes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, "buyer@example.com")
	env.fund(t, account.ID, "100.00")

	leads := make([]*domain.Lead, 25)
	for i := range leads {
		leads[i] = env.newLead(t, "2.00")
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := env.deposits.Credit(ctx, CreditRequest{
					AccountID:   account.ID,
					Amount:      dec("1.25"),
					Method:      domain.PaymentMethodCard,
					ExternalRef: uuid.NewString(),
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, lead := range leads {
			_, err := env.purchases.Purchase(ctx, account.ID, lead.ID)
			assert.NoError(t, err)
		}
	}()

	mismatches := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		if _, err := env.ledger.Reconcile(ctx, account.ID); err != nil {
			mismatches++
		}
	}

	assert.Zero(t, mismatches)
	stored, err := env.store.AccountRepository.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, stored.Frozen)
}

func TestGetHistoryAndBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, "buyer@example.com")
	env.fund(t, account.ID, "10.00")
	env.fund(t, account.ID, "2.50")

	history, err := env.ledger.GetHistory(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Less(t, history[0].ID, history[1].ID)
	assert.True(t, history[1].BalanceBefore.Equal(history[0].BalanceAfter))

	balance, err := env.ledger.GetBalance(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, dec("12.50").Equal(balance))

	_, err = env.ledger.GetHistory(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}
