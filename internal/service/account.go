package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/logger"
	"leadmarket-backend/internal/repository"
	"leadmarket-backend/internal/security"
)

const minPasswordLength = 8

type accountService struct {
	accountRepo  repository.AccountRepository
	ledgerSvc    LedgerService
	tokenManager security.TokenManager
}

func NewAccountService(accountRepo repository.AccountRepository, ledgerSvc LedgerService, tokenManager security.TokenManager) AccountService {
	return &accountService{
		accountRepo:  accountRepo,
		ledgerSvc:    ledgerSvc,
		tokenManager: tokenManager,
	}
}

func (s *accountService) Register(ctx context.Context, email, name, password string, role domain.AccountRole) (*domain.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email address", domain.ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, minPasswordLength)
	}
	if role == "" {
		role = domain.AccountRoleClient
	}
	if role != domain.AccountRoleClient && role != domain.AccountRoleAdmin {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	account := &domain.Account{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, err
	}
	logger.Info("Account registered", "accountID", account.ID, "role", account.Role)
	return account, nil
}

func (s *accountService) Authenticate(ctx context.Context, email, password string) (*domain.Account, string, error) {
	account, err := s.accountRepo.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil, "", domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, "", domain.ErrInvalidCredentials
	}

	token, err := s.tokenManager.GenerateAccessToken(account.ID, account.Email, string(account.Role))
	if err != nil {
		return nil, "", err
	}
	return account, token, nil
}

func (s *accountService) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return s.accountRepo.GetByID(ctx, id)
}

func (s *accountService) GetBalance(ctx context.Context, id int64) (decimal.Decimal, error) {
	return s.ledgerSvc.GetBalance(ctx, id)
}
