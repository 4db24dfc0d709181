package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/logger"
	"leadmarket-backend/internal/service"
)

// SeedData describes development fixtures. Deposits go through the deposit
// service, so re-running a seed file is idempotent on external_ref.
type SeedData struct {
	Accounts []SeedAccount `yaml:"accounts"`
	Leads    []SeedLead    `yaml:"leads"`
}

type SeedAccount struct {
	Email    string        `yaml:"email"`
	Name     string        `yaml:"name"`
	Password string        `yaml:"password"`
	Role     string        `yaml:"role"`
	Deposits []SeedDeposit `yaml:"deposits"`
}

type SeedDeposit struct {
	Amount      string `yaml:"amount"`
	Method      string `yaml:"method"`
	ExternalRef string `yaml:"external_ref"`
}

type SeedLead struct {
	Name         string `yaml:"name"`
	Email        string `yaml:"email"`
	Phone        string `yaml:"phone"`
	Company      string `yaml:"company"`
	Category     string `yaml:"category"`
	Region       string `yaml:"region"`
	QualityScore int32  `yaml:"quality_score"`
	Price        string `yaml:"price"`
	ExpiresInHrs int    `yaml:"expires_in_hours"`
}

type SeedResult struct {
	AccountsCreated int
	DepositsApplied int
	LeadsCreated    int
}

func LoadSeed(path string) (*SeedData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed SeedData
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &seed, nil
}

func (a *App) Seed(ctx context.Context, seed *SeedData) (SeedResult, error) {
	var res SeedResult

	for _, sa := range seed.Accounts {
		account, err := a.Services.Accounts.Register(ctx, sa.Email, sa.Name, sa.Password, domain.AccountRole(sa.Role))
		switch {
		case errors.Is(err, domain.ErrEmailTaken):
			if account, err = a.accounts.GetByEmail(ctx, sa.Email); err != nil {
				return res, err
			}
		case err != nil:
			return res, fmt.Errorf("account %s: %w", sa.Email, err)
		default:
			res.AccountsCreated++
		}

		for _, sd := range sa.Deposits {
			amount, err := decimal.NewFromString(sd.Amount)
			if err != nil {
				return res, fmt.Errorf("deposit %s: bad amount %q", sd.ExternalRef, sd.Amount)
			}
			_, err = a.Services.Deposits.Credit(ctx, service.CreditRequest{
				AccountID:   account.ID,
				Amount:      amount,
				Method:      domain.PaymentMethod(sd.Method),
				ExternalRef: sd.ExternalRef,
			})
			if errors.Is(err, domain.ErrDuplicateDeposit) {
				continue
			}
			if err != nil {
				return res, fmt.Errorf("deposit %s: %w", sd.ExternalRef, err)
			}
			res.DepositsApplied++
		}
	}

	for _, sl := range seed.Leads {
		price, err := decimal.NewFromString(sl.Price)
		if err != nil {
			return res, fmt.Errorf("lead %s: bad price %q", sl.Name, sl.Price)
		}
		lead := &domain.Lead{
			Name:         sl.Name,
			Email:        sl.Email,
			Phone:        sl.Phone,
			Company:      sl.Company,
			Category:     sl.Category,
			Region:       sl.Region,
			QualityScore: sl.QualityScore,
			Price:        price,
		}
		if sl.ExpiresInHrs > 0 {
			expires := time.Now().Add(time.Duration(sl.ExpiresInHrs) * time.Hour)
			lead.ExpiresAt = &expires
		}
		if err := a.Services.Leads.CreateLead(ctx, lead); err != nil {
			return res, fmt.Errorf("lead %s: %w", sl.Name, err)
		}
		res.LeadsCreated++
	}

	logger.Info("Seed applied", "accounts", res.AccountsCreated, "deposits", res.DepositsApplied, "leads", res.LeadsCreated)
	return res, nil
}
