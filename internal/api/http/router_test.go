package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/metrics"
	"leadmarket-backend/internal/repository/memory"
	"leadmarket-backend/internal/security"
	"leadmarket-backend/internal/service"
)

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.DispatchKind, uuid.UUID, any) error { return nil }

type apiEnv struct {
	server *httptest.Server
	store  *memory.Store
	tm     security.TokenManager
	admin  string
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	store := memory.NewStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	tm := security.NewTokenManager("router-test-secret-router-test-secret", time.Hour)

	ledger := service.NewLedgerService(store, store.LedgerRepository, store.AccountRepository, nil, nil, "", m)
	svc := Services{
		Accounts:      service.NewAccountService(store.AccountRepository, ledger, tm),
		Leads:         service.NewLeadService(store.LeadRepository, nil, 0, m),
		Purchases:     service.NewPurchaseService(store, store.PurchaseRepository, store.AccountRepository, ledger, nopPublisher{}, nil, m),
		Deposits:      service.NewDepositService(store, ledger, nopPublisher{}, nil, m),
		Ledger:        ledger,
		Notifications: service.NewNotificationService(store.NotificationRepository, store.AccountRepository, store.LeadRepository, service.NewLogEmailService()),
	}

	env := &apiEnv{
		server: httptest.NewServer(NewRouter(svc, tm, m, reg)),
		store:  store,
		tm:     tm,
	}
	t.Cleanup(env.server.Close)

	admin := &domain.Account{Email: "admin@example.com", Name: "Admin", Role: domain.AccountRoleAdmin}
	require.NoError(t, store.AccountRepository.Create(context.Background(), admin))
	env.admin = env.token(t, admin)
	return env
}

func (e *apiEnv) token(t *testing.T, a *domain.Account) string {
	t.Helper()
	token, err := e.tm.GenerateAccessToken(a.ID, a.Email, string(a.Role))
	require.NoError(t, err)
	return token
}

func (e *apiEnv) client(t *testing.T, email string) (*domain.Account, string) {
	t.Helper()
	a := &domain.Account{Email: email, Name: email, Role: domain.AccountRoleClient}
	require.NoError(t, e.store.AccountRepository.Create(context.Background(), a))
	return a, e.token(t, a)
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (e *apiEnv) createLead(t *testing.T, price string) domain.Lead {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/v1/admin/leads", e.admin, map[string]any{
		"name": "Acme Solar", "email": "owner@acme.test", "phone": "+1 555 0100",
		"category": "solar", "region": "south", "quality_score": 80, "price": price,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var lead domain.Lead
	require.NoError(t, json.Unmarshal(body, &lead))
	return lead
}

func (e *apiEnv) deposit(t *testing.T, accountID int64, amount, ref string) (*http.Response, []byte) {
	t.Helper()
	return e.do(t, http.MethodPost, "/api/v1/admin/deposits", e.admin, map[string]any{
		"account_id": accountID, "amount": amount, "payment_method": "pix", "external_ref": ref,
	})
}

func TestHealthzAndMetrics(t *testing.T) {
	env := newAPIEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `leadmarket_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestAuthMiddleware(t *testing.T) {
	env := newAPIEnv(t)
	_, clientToken := env.client(t, "buyer@example.com")

	resp, _ := env.do(t, http.MethodGet, "/api/v1/leads", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/leads", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	other := security.NewTokenManager("a-completely-different-signing-secret", time.Hour)
	forged, err := other.GenerateAccessToken(1, "admin@example.com", "admin")
	require.NoError(t, err)
	resp, _ = env.do(t, http.MethodGet, "/api/v1/leads", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/leads", clientToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/admin/reconcile", clientToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRegisterAndLogin(t *testing.T) {
	env := newAPIEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "new@example.com", "name": "New Buyer", "password": "long-enough",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var registered authResponse
	require.NoError(t, json.Unmarshal(body, &registered))
	assert.NotEmpty(t, registered.Token)
	assert.Equal(t, domain.AccountRoleClient, registered.Account.Role)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "new@example.com", "name": "Again", "password": "long-enough",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "nope", "name": "", "password": "short",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var verr ErrorResponse
	require.NoError(t, json.Unmarshal(body, &verr))
	assert.Contains(t, verr.Details, "Email")
	assert.Contains(t, verr.Details, "Password")

	resp, _ = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "new@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "new@example.com", "password": "long-enough",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login authResponse
	require.NoError(t, json.Unmarshal(body, &login))

	resp, _ = env.do(t, http.MethodGet, "/api/v1/me/balance", login.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPurchaseFlow(t *testing.T) {
	env := newAPIEnv(t)
	buyer, buyerToken := env.client(t, "buyer@example.com")
	_, rivalToken := env.client(t, "rival@example.com")
	lead := env.createLead(t, "75.50")

	resp, body := env.deposit(t, buyer.ID, "200.00", "pix-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var first domain.LedgerEntry
	require.NoError(t, json.Unmarshal(body, &first))

	resp, body = env.deposit(t, buyer.ID, "200.00", "pix-1")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var dup duplicateDepositResponse
	require.NoError(t, json.Unmarshal(body, &dup))
	require.NotNil(t, dup.Entry)
	assert.Equal(t, first.ID, dup.Entry.ID)

	resp, body = env.do(t, http.MethodGet, "/api/v1/leads?category=solar", buyerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed leadsResponse
	require.NoError(t, json.Unmarshal(body, &listed))
	require.Len(t, listed.Leads, 1)
	assert.Empty(t, listed.Leads[0].Email)

	path := fmt.Sprintf("/api/v1/leads/%d/purchase", lead.ID)
	resp, body = env.do(t, http.MethodPost, path, buyerToken, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var purchase domain.Purchase
	require.NoError(t, json.Unmarshal(body, &purchase))
	assert.True(t, decimal.RequireFromString("75.50").Equal(purchase.Price))
	require.NotNil(t, purchase.Lead)
	assert.Equal(t, "owner@acme.test", purchase.Lead.Email)

	resp, _ = env.do(t, http.MethodPost, path, rivalToken, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/v1/me/balance", buyerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var balance balanceResponse
	require.NoError(t, json.Unmarshal(body, &balance))
	assert.True(t, decimal.RequireFromString("124.50").Equal(balance.Balance))

	resp, body = env.do(t, http.MethodGet, "/api/v1/me/ledger", buyerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ledger ledgerResponse
	require.NoError(t, json.Unmarshal(body, &ledger))
	assert.Len(t, ledger.Entries, 2)

	resp, body = env.do(t, http.MethodGet, "/api/v1/me/purchases", buyerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history purchasesResponse
	require.NoError(t, json.Unmarshal(body, &history))
	assert.Equal(t, int32(1), history.Total)

	resp, body = env.do(t, http.MethodPost, "/api/v1/admin/reconcile", env.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report domain.ReconciliationReport
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, 3, report.Checked)
	assert.Empty(t, report.Mismatched)

	resp, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/purchases/%d/refund", purchase.ID), env.admin,
		map[string]string{"reason": "bad phone number"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/purchases/%d/refund", purchase.ID), env.admin,
		map[string]string{"reason": "again"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPurchaseErrors(t *testing.T) {
	env := newAPIEnv(t)
	buyer, buyerToken := env.client(t, "buyer@example.com")
	lead := env.createLead(t, "50.00")

	resp, _ := env.deposit(t, buyer.ID, "10.00", "card-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/leads/%d/purchase", lead.ID), buyerToken, nil)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode, string(body))

	resp, _ = env.do(t, http.MethodPost, "/api/v1/leads/9999/purchase", buyerToken, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = env.deposit(t, buyer.ID, "-5.00", "card-2")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/admin/deposits", env.admin, map[string]any{
		"account_id": buyer.ID, "amount": "5.00", "payment_method": "crypto", "external_ref": "x",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.deposit(t, 9999, "5.00", "card-3")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, env.store.AccountRepository.SetFrozen(context.Background(), buyer.ID, true, "investigation"))
	resp, _ = env.deposit(t, buyer.ID, "50.00", "card-4")
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
}

func TestUpdateLead(t *testing.T) {
	env := newAPIEnv(t)
	lead := env.createLead(t, "20.00")

	resp, body := env.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/admin/leads/%d", lead.ID), env.admin,
		map[string]any{"price": "22.00", "notes": "verified"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var updated domain.Lead
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "verified", updated.Notes)
	assert.Equal(t, domain.LeadStatusAvailable, updated.Status)

	resp, _ = env.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/admin/leads/%d", lead.ID), env.admin,
		map[string]any{"status": "sold"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPatch, "/api/v1/admin/leads/9999", env.admin, map[string]any{"notes": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNotifications(t *testing.T) {
	env := newAPIEnv(t)
	buyer, buyerToken := env.client(t, "buyer@example.com")
	note := &domain.Notification{AccountID: buyer.ID, Title: "Lead purchased", Message: "hi"}
	require.NoError(t, env.store.NotificationRepository.Create(context.Background(), note))

	resp, body := env.do(t, http.MethodGet, "/api/v1/me/notifications", buyerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var notes notificationsResponse
	require.NoError(t, json.Unmarshal(body, &notes))
	require.Len(t, notes.Notifications, 1)

	resp, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/me/notifications/%d/read", note.ID), buyerToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/me/notifications/%d/read", note.ID), env.admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrLeadUnavailable, http.StatusConflict},
		{fmt.Errorf("%w: %w", domain.ErrLeadUnavailable, domain.ErrLeadNotFound), http.StatusConflict},
		{&domain.InsufficientFundsError{}, http.StatusPaymentRequired},
		{domain.ErrAccountNotFound, http.StatusNotFound},
		{domain.ErrDuplicateDeposit, http.StatusConflict},
		{domain.ErrExternalRefConflict, http.StatusConflict},
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{domain.ErrAccountFrozen, http.StatusLocked},
		{fmt.Errorf("%w: deadlock", domain.ErrTransactionFailed), http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
