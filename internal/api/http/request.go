package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"leadmarket-backend/internal/domain"
)

const maxBodyBytes = 1 << 20

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Name     string `json:"name" validate:"required,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type createLeadRequest struct {
	Name         string          `json:"name" validate:"required,max=255"`
	Email        string          `json:"email" validate:"omitempty,email,max=255"`
	Phone        string          `json:"phone" validate:"max=50"`
	Company      string          `json:"company" validate:"max=255"`
	Category     string          `json:"category" validate:"required,max=100"`
	Region       string          `json:"region" validate:"max=100"`
	Notes        string          `json:"notes" validate:"max=2000"`
	QualityScore int32           `json:"quality_score" validate:"gte=0,lte=100"`
	Price        decimal.Decimal `json:"price"`
	ExpiresAt    *time.Time      `json:"expires_at"`
}

func (r createLeadRequest) toDomain() *domain.Lead {
	return &domain.Lead{
		Name:         r.Name,
		Email:        r.Email,
		Phone:        r.Phone,
		Company:      r.Company,
		Category:     r.Category,
		Region:       r.Region,
		Notes:        r.Notes,
		QualityScore: r.QualityScore,
		Price:        r.Price,
		ExpiresAt:    r.ExpiresAt,
	}
}

type updateLeadRequest struct {
	Name         *string          `json:"name" validate:"omitempty,max=255"`
	Email        *string          `json:"email" validate:"omitempty,email,max=255"`
	Phone        *string          `json:"phone" validate:"omitempty,max=50"`
	Company      *string          `json:"company" validate:"omitempty,max=255"`
	Category     *string          `json:"category" validate:"omitempty,max=100"`
	Region       *string          `json:"region" validate:"omitempty,max=100"`
	Notes        *string          `json:"notes" validate:"omitempty,max=2000"`
	QualityScore *int32           `json:"quality_score" validate:"omitempty,gte=0,lte=100"`
	Price        *decimal.Decimal `json:"price"`
}

func (r updateLeadRequest) toDomain() domain.LeadDetails {
	return domain.LeadDetails{
		Name:         r.Name,
		Email:        r.Email,
		Phone:        r.Phone,
		Company:      r.Company,
		Category:     r.Category,
		Region:       r.Region,
		Notes:        r.Notes,
		QualityScore: r.QualityScore,
		Price:        r.Price,
	}
}

type refundRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes the 400 response itself and returns false on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad %s", domain.ErrInvalidInput, name)
	}
	return id, nil
}

func queryInt32(r *http.Request, key string) (int32, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidInput, key)
	}
	return int32(v), nil
}

func queryInt64(r *http.Request, key string) (int64, error) {
	v, err := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", domain.ErrInvalidInput, key)
	}
	return v, nil
}

func queryDecimal(r *http.Request, key string) (*decimal.Decimal, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a decimal", domain.ErrInvalidInput, key)
	}
	return &v, nil
}

func paging(r *http.Request) (page, pageSize int32, err error) {
	if page, err = queryInt32(r, "page"); err != nil {
		return 0, 0, err
	}
	if pageSize, err = queryInt32(r, "page_size"); err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}

func leadFilter(r *http.Request) (domain.LeadFilter, error) {
	q := r.URL.Query()
	filter := domain.LeadFilter{Category: q.Get("category"), Region: q.Get("region")}
	var err error
	if filter.MinPrice, err = queryDecimal(r, "min_price"); err != nil {
		return filter, err
	}
	if filter.MaxPrice, err = queryDecimal(r, "max_price"); err != nil {
		return filter, err
	}
	if filter.MinQuality, err = queryInt32(r, "min_quality"); err != nil {
		return filter, err
	}
	if filter.Page, filter.PageSize, err = paging(r); err != nil {
		return filter, err
	}
	return filter, nil
}
