package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LeadStatus string

const (
	LeadStatusAvailable LeadStatus = "available"
	LeadStatusReserved  LeadStatus = "reserved"
	LeadStatusSold      LeadStatus = "sold"
	LeadStatusExpired   LeadStatus = "expired"
)

var leadTransitions = map[LeadStatus][]LeadStatus{
	LeadStatusAvailable: {LeadStatusReserved, LeadStatusSold, LeadStatusExpired},
	LeadStatusReserved:  {LeadStatusAvailable, LeadStatusSold, LeadStatusExpired},
}

// CanTransition reports whether a lead may move from one status to another.
// sold and expired are terminal.
func CanTransition(from, to LeadStatus) bool {
	for _, next := range leadTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s LeadStatus) IsTerminal() bool {
	return s == LeadStatusSold || s == LeadStatusExpired
}

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusAvailable, LeadStatusReserved, LeadStatusSold, LeadStatusExpired:
		return true
	}
	return false
}

type Lead struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	Company      string          `json:"company,omitempty"`
	Category     string          `json:"category"`
	Region       string          `json:"region"`
	Notes        string          `json:"notes,omitempty"`
	QualityScore int32           `json:"quality_score"`
	Price        decimal.Decimal `json:"price"`
	Status       LeadStatus      `json:"status"`
	Version      int64           `json:"version"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	SoldAt       *time.Time      `json:"sold_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (l *Lead) IsPurchasable() bool {
	return l.Status == LeadStatusAvailable
}

// Redacted hides the contact fields of a lead that has not been bought yet.
func (l Lead) Redacted() Lead {
	l.Email = ""
	l.Phone = ""
	return l
}

// LeadDetails is the admin edit payload. Nil fields are left untouched.
type LeadDetails struct {
	Name         *string
	Email        *string
	Phone        *string
	Company      *string
	Category     *string
	Region       *string
	Notes        *string
	QualityScore *int32
	Price        *decimal.Decimal
}

type LeadFilter struct {
	Category   string
	Region     string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	MinQuality int32
	Page       int32
	PageSize   int32
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxPage         = 1_000_000
)

// PageOffset is the row offset of a 1-based page, in int64 so that no page
// number can wrap it negative.
func PageOffset(page, pageSize int32) int64 {
	if page < 1 || pageSize < 1 {
		return 0
	}
	return int64(page-1) * int64(pageSize)
}

// Normalize clamps paging values into range.
func (f *LeadFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
}

func (f LeadFilter) Offset() int64 {
	return PageOffset(f.Page, f.PageSize)
}

// Matches applies the filter to a single lead. Used by in-process stores.
func (f LeadFilter) Matches(l *Lead) bool {
	if l.Status != LeadStatusAvailable {
		return false
	}
	if f.Category != "" && l.Category != f.Category {
		return false
	}
	if f.Region != "" && l.Region != f.Region {
		return false
	}
	if f.MinPrice != nil && l.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && l.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	return l.QualityScore >= f.MinQuality
}
