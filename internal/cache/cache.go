package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/logger"
	"leadmarket-backend/internal/metrics"
)

const (
	leadsGenerationKey = "leadmarket:leads:gen"
	leadsKeyPrefix     = "leadmarket:leads:available"
	balanceKeyPrefix   = "leadmarket:balance"
)

// Cache is a short-lived read cache in front of listings and balances. It is
// never consulted by the purchase or deposit paths. A nil *Cache is valid and
// always misses.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
}

func New(client *redis.Client, ttl time.Duration, m *metrics.Metrics) *Cache {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Cache{client: client, ttl: ttl, metrics: m}
}

type leadPage struct {
	Leads []domain.Lead `json:"leads"`
	Total int32         `json:"total"`
}

// GetLeads returns a cached listing page for filter, if present.
func (c *Cache) GetLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, int32, bool) {
	if c == nil {
		return nil, 0, false
	}
	key, err := c.leadsKey(ctx, filter)
	if err != nil {
		c.miss("leads", err)
		return nil, 0, false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		c.miss("leads", err)
		return nil, 0, false
	}
	var page leadPage
	if err := json.Unmarshal(data, &page); err != nil {
		c.miss("leads", err)
		return nil, 0, false
	}
	c.metrics.CacheLookups.WithLabelValues("leads", "hit").Inc()
	return page.Leads, page.Total, true
}

func (c *Cache) SetLeads(ctx context.Context, filter domain.LeadFilter, leads []domain.Lead, total int32) {
	if c == nil {
		return
	}
	key, err := c.leadsKey(ctx, filter)
	if err != nil {
		logger.Warn("Failed to resolve lead cache key", "error", err)
		return
	}
	data, err := json.Marshal(leadPage{Leads: leads, Total: total})
	if err != nil {
		logger.Warn("Failed to encode lead page", "error", err)
		return
	}
	if err := c.client.Set(ctx, key, string(data), c.ttl).Err(); err != nil {
		logger.Warn("Failed to cache lead page", "key", key, "error", err)
	}
}

// InvalidateLeads bumps the listing generation so every cached page is
// orphaned and left to expire.
func (c *Cache) InvalidateLeads(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.client.Incr(ctx, leadsGenerationKey).Err(); err != nil {
		logger.Warn("Failed to invalidate lead cache", "error", err)
	}
}

func (c *Cache) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, bool) {
	if c == nil {
		return decimal.Zero, false
	}
	val, err := c.client.Get(ctx, balanceKey(accountID)).Result()
	if err != nil {
		c.miss("balance", err)
		return decimal.Zero, false
	}
	balance, err := decimal.NewFromString(val)
	if err != nil {
		c.miss("balance", err)
		return decimal.Zero, false
	}
	c.metrics.CacheLookups.WithLabelValues("balance", "hit").Inc()
	return balance, true
}

func (c *Cache) SetBalance(ctx context.Context, accountID int64, balance decimal.Decimal) {
	if c == nil {
		return
	}
	if err := c.client.Set(ctx, balanceKey(accountID), balance.StringFixed(2), c.ttl).Err(); err != nil {
		logger.Warn("Failed to cache balance", "accountID", accountID, "error", err)
	}
}

func (c *Cache) InvalidateBalance(ctx context.Context, accountID int64) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, balanceKey(accountID)).Err(); err != nil {
		logger.Warn("Failed to invalidate balance cache", "accountID", accountID, "error", err)
	}
}

func (c *Cache) miss(name string, err error) {
	if !errors.Is(err, redis.Nil) {
		logger.Debug("Cache lookup failed", "cache", name, "error", err)
	}
	c.metrics.CacheLookups.WithLabelValues(name, "miss").Inc()
}

func (c *Cache) leadsKey(ctx context.Context, filter domain.LeadFilter) (string, error) {
	gen, err := c.client.Get(ctx, leadsGenerationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%s", leadsKeyPrefix, gen, filterKey(filter)), nil
}

func filterKey(f domain.LeadFilter) string {
	f.Normalize()
	decimalOrDash := func(d *decimal.Decimal) string {
		if d == nil {
			return "-"
		}
		return d.String()
	}
	return fmt.Sprintf("c=%s|r=%s|min=%s|max=%s|q=%d|p=%d|s=%d",
		f.Category, f.Region, decimalOrDash(f.MinPrice), decimalOrDash(f.MaxPrice), f.MinQuality, f.Page, f.PageSize)
}

func balanceKey(accountID int64) string {
	return balanceKeyPrefix + ":" + strconv.FormatInt(accountID, 10)
}
