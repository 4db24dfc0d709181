package service

import (
	"context"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"leadmarket-backend/internal/domain"
)

// MockEmailService
type MockEmailService struct {
	mock.Mock
}

func (m *MockEmailService) SendPurchaseReceipt(ctx context.Context, to, name string, lead *domain.Lead, price decimal.Decimal) error {
	args := m.Called(ctx, to, name, lead, price)
	return args.Error(0)
}
func (m *MockEmailService) SendDepositReceipt(ctx context.Context, to, name string, amount, balance decimal.Decimal) error {
	args := m.Called(ctx, to, name, amount, balance)
	return args.Error(0)
}
func (m *MockEmailService) SendLedgerAlert(ctx context.Context, to string, mismatch *domain.LedgerMismatchError) error {
	args := m.Called(ctx, to, mismatch)
	return args.Error(0)
}

// MockMailClient
type MockMailClient struct {
	mock.Mock
}

func (m *MockMailClient) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rest.Response), args.Error(1)
}
