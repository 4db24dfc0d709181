package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"leadmarket-backend/internal/cache"
	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/logger"
	"leadmarket-backend/internal/metrics"
	"leadmarket-backend/internal/repository"
)

type leadService struct {
	leadRepo      repository.LeadRepository
	cache         *cache.Cache
	defaultExpiry time.Duration
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewLeadService(leadRepo repository.LeadRepository, c *cache.Cache, defaultExpiry time.Duration, m *metrics.Metrics) LeadService {
	if m == nil {
		m = metrics.NewNop()
	}
	return &leadService{
		leadRepo:      leadRepo,
		cache:         c,
		defaultExpiry: defaultExpiry,
		metrics:       m,
		now:           time.Now,
	}
}

func (s *leadService) CreateLead(ctx context.Context, lead *domain.Lead) error {
	lead.Name = strings.TrimSpace(lead.Name)
	if lead.Name == "" {
		return fmt.Errorf("%w: lead name is required", domain.ErrInvalidInput)
	}
	if err := validatePrice(lead.Price); err != nil {
		return err
	}
	lead.Status = domain.LeadStatusAvailable
	lead.SoldAt = nil
	if lead.ExpiresAt == nil && s.defaultExpiry > 0 {
		expires := s.now().Add(s.defaultExpiry)
		lead.ExpiresAt = &expires
	}

	if err := s.leadRepo.Create(ctx, lead); err != nil {
		return err
	}
	s.cache.InvalidateLeads(ctx)
	logger.Info("Lead created", "leadID", lead.ID, "category", lead.Category, "price", lead.Price.String())
	return nil
}

func (s *leadService) GetLead(ctx context.Context, id int64) (*domain.Lead, error) {
	return s.leadRepo.GetByID(ctx, id)
}

// ListAvailableLeads serves the public listing. Contact fields are redacted
// and results may lag committed state by the cache TTL.
func (s *leadService) ListAvailableLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, int32, error) {
	filter.Normalize()
	if leads, total, ok := s.cache.GetLeads(ctx, filter); ok {
		return leads, total, nil
	}

	leads, total, err := s.leadRepo.ListAvailable(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	for i := range leads {
		leads[i] = leads[i].Redacted()
	}
	s.cache.SetLeads(ctx, filter, leads, total)
	return leads, total, nil
}

// UpdateLeadDetails is the admin edit path. Status is never written here.
func (s *leadService) UpdateLeadDetails(ctx context.Context, id int64, details domain.LeadDetails) (*domain.Lead, error) {
	if details.Price != nil {
		if err := validatePrice(*details.Price); err != nil {
			return nil, err
		}
	}
	if details.Name != nil && strings.TrimSpace(*details.Name) == "" {
		return nil, fmt.Errorf("%w: lead name cannot be empty", domain.ErrInvalidInput)
	}

	lead, err := s.leadRepo.UpdateDetails(ctx, id, details)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateLeads(ctx)
	logger.WithLead(id).Info("Lead details updated", "version", lead.Version)
	return lead, nil
}

func (s *leadService) ExpireLeads(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.leadRepo.ExpireBefore(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.metrics.LeadsExpired.Add(float64(n))
		s.cache.InvalidateLeads(ctx)
	}
	return n, nil
}

func validatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("%w: price must be positive, got %s", domain.ErrInvalidAmount, price)
	}
	if !price.Equal(price.Round(2)) {
		return fmt.Errorf("%w: price %s has more than two decimal places", domain.ErrInvalidAmount, price)
	}
	return nil
}
