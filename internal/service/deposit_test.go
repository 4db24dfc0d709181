package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadmarket-backend/internal/domain"
)

func TestCredit_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, "buyer@example.com")
	req := CreditRequest{
		AccountID:   account.ID,
		Amount:      dec("50.00"),
		Method:      domain.PaymentMethodPix,
		ExternalRef: "pix-e2e-0001",
	}

	first, err := env.deposits.Credit(ctx, req)
	require.NoError(t, err)
	assert.True(t, dec("0").Equal(first.BalanceBefore))
	assert.True(t, dec("50.00").Equal(first.BalanceAfter))

	second, err := env.deposits.Credit(ctx, req)
	require.ErrorIs(t, err, domain.ErrDuplicateDeposit)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)

	assert.True(t, dec("50.00").Equal(env.balance(t, account.ID)))
	entries := env.entries(t, account.ID)
	require.Len(t, entries, 1)
	assert.True(t, dec("50.00").Equal(entries[0].Amount))
	assert.Equal(t, 1, env.publisher.count(domain.DispatchKindDepositReceived))
}

func TestCredit_ConcurrentReplays(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, "buyer@example.com")
	req := CreditRequest{AccountID: account.ID, Amount: dec("50.00"), Method: domain.PaymentMethodCard, ExternalRef: "ch_123"}

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.deposits.Credit(ctx, req)
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, err := range errs {
		if err == nil {
			applied++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrDuplicateDeposit)
	}
	assert.Equal(t, 1, applied)
	assert.True(t, dec("50.00").Equal(env.balance(t, account.ID)))
}

func TestCredit_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, "buyer@example.com")

	tests := []struct {
		name string
		req  CreditRequest
		want error
	}{
		{"ZeroAmount", CreditRequest{AccountID: account.ID, Amount: dec("0"), Method: domain.PaymentMethodCard, ExternalRef: "r1"}, domain.ErrInvalidAmount},
		{"NegativeAmount", CreditRequest{AccountID: account.ID, Amount: dec("-5"), Method: domain.PaymentMethodCard, ExternalRef: "r2"}, domain.ErrInvalidAmount},
		{"SubCent", CreditRequest{AccountID: account.ID, Amount: dec("1.005"), Method: domain.PaymentMethodCard, ExternalRef: "r3"}, domain.ErrInvalidAmount},
		{"UnknownMethod", CreditRequest{AccountID: account.ID, Amount: dec("5"), Method: "crypto", ExternalRef: "r4"}, domain.ErrInvalidInput},
		{"MissingRef", CreditRequest{AccountID: account.ID, Amount: dec("5"), Method: domain.PaymentMethodCard, ExternalRef: "  "}, domain.ErrInvalidInput},
		{"UnknownAccount", CreditRequest{AccountID: 9999, Amount: dec("5"), Method: domain.PaymentMethodCard, ExternalRef: "r5"}, domain.ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.deposits.Credit(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, env.entries(t, account.ID))
}

func TestCredit_FrozenAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, "buyer@example.com")
	require.NoError(t, env.store.AccountRepository.SetFrozen(ctx, account.ID, true, "investigation"))

	_, err := env.deposits.Credit(ctx, CreditRequest{AccountID: account.ID, Amount: dec("5"), Method: domain.PaymentMethodManual, ExternalRef: "m-1"})
	assert.ErrorIs(t, err, domain.ErrAccountFrozen)
}

func TestCredit_RefReusedForDifferentDeposit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.newAccount(t, "first@example.com")
	second := env.newAccount(t, "second@example.com")

	_, err := env.deposits.Credit(ctx, CreditRequest{AccountID: first.ID, Amount: dec("20.00"), Method: domain.PaymentMethodCard, ExternalRef: "ch_shared"})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  CreditRequest
	}{
		{"OtherAccount", CreditRequest{AccountID: second.ID, Amount: dec("20.00"), Method: domain.PaymentMethodCard, ExternalRef: "ch_shared"}},
		{"OtherAmount", CreditRequest{AccountID: first.ID, Amount: dec("25.00"), Method: domain.PaymentMethodCard, ExternalRef: "ch_shared"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := env.deposits.Credit(ctx, tt.req)
			assert.ErrorIs(t, err, domain.ErrExternalRefConflict)
			assert.NotErrorIs(t, err, domain.ErrDuplicateDeposit)
			assert.Nil(t, entry)
		})
	}

	assert.True(t, dec("20.00").Equal(env.balance(t, first.ID)))
	assert.True(t, dec("0").Equal(env.balance(t, second.ID)))
}
